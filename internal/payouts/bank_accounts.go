package payouts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/security"
)

// RegisterBankAccount stores a new account in pending verification.
func (s *service) RegisterBankAccount(ctx context.Context, input RegisterBankAccountInput) (*models.BankAccount, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if !input.Actor.IsAdmin() && !input.Actor.IsSellerOf(input.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller cannot add bank accounts for this seller")
	}
	holder := strings.TrimSpace(input.AccountHolder)
	if holder == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account holder is required")
	}
	iban := security.NormalizeIBAN(input.IBAN)
	if !validIBAN(iban) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "IBAN must be 15 to 34 letters and digits starting with a country code")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	sealed, err := s.sealer.Seal(iban)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal bank account number")
	}

	account := &models.BankAccount{
		ID:                 uuid.New(),
		SellerID:           input.SellerID,
		AccountHolder:      holder,
		IBANSealed:         sealed,
		IBANLast4:          security.Last4(iban),
		Currency:           input.Currency,
		VerificationStatus: enums.BankAccountPending,
		IsDefault:          input.MakeDefault,
	}
	if name := strings.TrimSpace(input.BankName); name != "" {
		account.BankName = &name
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.accounts.WithTx(tx)
		if account.IsDefault {
			if err := repo.ClearDefault(ctx, input.SellerID); err != nil {
				return err
			}
		}
		if err := repo.Create(ctx, account); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateBankAccount,
			EntityID:   account.ID,
			Action:     "register",
			Actor:      input.Actor,
			Field:      "verification_status",
			New:        string(account.VerificationStatus),
			Metadata: map[string]any{
				"iban_last4": account.IBANLast4,
				"currency":   string(account.Currency),
			},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "register bank account")
	}
	return account, nil
}

// VerifyBankAccount approves or rejects a pending account.
func (s *service) VerifyBankAccount(ctx context.Context, input VerifyBankAccountInput) (*models.BankAccount, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only administrators can verify bank accounts")
	}
	account, err := s.loadAccount(ctx, input.BankAccountID)
	if err != nil {
		return nil, err
	}
	if account.VerificationStatus != enums.BankAccountPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "bank account is already %s", account.VerificationStatus)
	}
	target := enums.BankAccountRejected
	if input.Approve {
		target = enums.BankAccountApproved
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.accounts.WithTx(tx)
		now := s.now().UTC()
		if err := repo.UpdateIfVerification(ctx, account.ID, enums.BankAccountPending, map[string]any{
			"verification_status": target,
			"verified_at":         now,
		}); err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "bank account was modified concurrently")
			}
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateBankAccount,
			EntityID:   account.ID,
			Action:     "verify",
			Actor:      input.Actor,
			Field:      "verification_status",
			Previous:   string(enums.BankAccountPending),
			New:        string(target),
		}); err != nil {
			return err
		}
		updated, err := repo.FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
		account = updated
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "verify bank account")
	}
	return account, nil
}

func (s *service) ListBankAccounts(ctx context.Context, actor identity.Actor, sellerID uuid.UUID) ([]models.BankAccount, error) {
	if !actor.IsAdmin() && !actor.IsSellerOf(sellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller cannot view bank accounts for this seller")
	}
	rows, err := s.accounts.ListForSeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bank accounts")
	}
	return rows, nil
}

func (s *service) loadAccount(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeBankAccountNotFound, "bank account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	return account, nil
}

func validIBAN(iban string) bool {
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	for i, r := range iban {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return false
		case (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			return false
		}
	}
	return true
}
