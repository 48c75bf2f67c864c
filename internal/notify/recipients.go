package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
)

// CustomerEmails resolves recipients from the customers table.
type CustomerEmails struct {
	DB db.DBTX
}

func (c CustomerEmails) EmailFor(ctx context.Context, customerID uuid.UUID) (string, error) {
	var email string
	err := c.DB.QueryRow(ctx, `SELECT email FROM customers WHERE id = $1`, customerID).Scan(&email)
	if err != nil {
		if db.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}
