package documents

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// ErrInvalidRef is returned for document references outside the store root.
var ErrInvalidRef = errors.New("documents: invalid reference")

// BillPDFRenderer writes bill PDFs below a root directory. References are
// slash-separated paths relative to the root.
type BillPDFRenderer struct {
	root string
}

// NewBillPDFRenderer constructs a renderer, creating root when missing.
func NewBillPDFRenderer(root string) (*BillPDFRenderer, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("documents: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "documents: create root")
	}
	return &BillPDFRenderer{root: root}, nil
}

// RenderBill renders and stores the bill PDF and returns its reference.
func (r *BillPDFRenderer) RenderBill(ctx context.Context, account billing.Account, bill billing.Bill) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := BuildBillPDF(account, bill)
	if err != nil {
		return "", errors.Wrap(err, "build bill pdf")
	}
	ref := filepath.ToSlash(filepath.Join("bills", account.ID, bill.ID+".pdf"))
	path, err := r.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create bill directory")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Wrap(err, "write bill pdf")
	}
	return ref, nil
}

// Open reads a stored document.
func (r *BillPDFRenderer) Open(ref string) ([]byte, error) {
	path, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (r *BillPDFRenderer) resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrInvalidRef
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrInvalidRef, "%q", ref)
	}
	return filepath.Join(r.root, clean), nil
}
