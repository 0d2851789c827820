package application

import (
	"context"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// BillQueryService serves bill reads to residents and staff.
type BillQueryService struct {
	uow billing.UnitOfWork
}

// NewBillQueryService constructs the service.
func NewBillQueryService(uow billing.UnitOfWork) (*BillQueryService, error) {
	if uow == nil {
		return nil, errors.New("bill query: nil unit of work")
	}
	return &BillQueryService{uow: uow}, nil
}

// ListMine lists the bills of the actor's account, newest period first.
func (s *BillQueryService) ListMine(ctx context.Context, actor Actor) ([]billing.Bill, error) {
	var bills []billing.Bill
	err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		account, err := ledger.Accounts().FindByOwner(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			bills = []billing.Bill{}
			return nil
		}
		bills, err = ledger.Bills().ListByAccount(ctx, account.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// GetBill returns a bill visible to the actor together with its account.
func (s *BillQueryService) GetBill(ctx context.Context, actor Actor, billID string) (*billing.Bill, *billing.Account, error) {
	var bill *billing.Bill
	var account *billing.Account
	err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		var err error
		bill, err = ledger.Bills().Get(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return errors.Wrapf(billing.ErrBillNotFound, "bill %s", billID)
		}
		account, err = ledger.Accounts().Get(ctx, bill.AccountID)
		if err != nil {
			return err
		}
		if account == nil || !actor.CanAccess(*account) {
			return errors.Wrapf(billing.ErrNotOwner, "bill %s", billID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return bill, account, nil
}
