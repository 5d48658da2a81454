package types

import "fmt"

// Evidence is a buyer or seller supplied attachment reference on a dispute.
type Evidence struct {
	Kind        string `json:"kind" validate:"required,oneof=photo video document tracking other"`
	URL         string `json:"url" validate:"required,url"`
	Description string `json:"description,omitempty" validate:"max=1000"`
}

type EvidenceList []Evidence

func (list EvidenceList) Validate() error {
	for i, ev := range list {
		if err := validateSnapshot(fmt.Sprintf("evidence %d", i), ev); err != nil {
			return err
		}
	}
	return nil
}
