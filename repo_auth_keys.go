package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// consumeAuthKeySQL flips consumed_at exactly once. The WHERE clause makes
// consumption race-safe: a second caller matches zero rows.
var consumeAuthKeySQL = `UPDATE "auth_keys" AS "akey"
SET
	"consumed_at" = CURRENT_TIMESTAMP,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"akey"."id" = ?
AND
	"akey"."consumed_at" IS NULL
RETURNING *;`

type AuthKeys interface {
	repository.Repository[*AuthKey]

	GetValid(ctx context.Context, id uuid.UUID, kind AuthKeyKind) (*AuthKey, error)
	GetValidTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind AuthKeyKind) (*AuthKey, error)
	Consume(ctx context.Context, id uuid.UUID) (*AuthKey, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*AuthKey, error)
}

type authKeys struct {
	repository.Repository[*AuthKey]
	db *bun.DB
}

var (
	_ AuthKeys                        = (*authKeys)(nil)
	_ repository.Repository[*AuthKey] = (*authKeys)(nil)
)

func NewAuthKeysRepository(db *bun.DB) AuthKeys {
	repo := repository.NewRepository[*AuthKey](db, repository.ModelHandlers[*AuthKey]{
		NewRecord: func() *AuthKey { return &AuthKey{} },
		GetID: func(k *AuthKey) uuid.UUID {
			if k == nil {
				return uuid.Nil
			}
			return k.ID
		},
		SetID: func(k *AuthKey, id uuid.UUID) {
			if k != nil {
				k.ID = id
			}
		},
	})

	return &authKeys{
		Repository: repo,
		db:         db,
	}
}

// GetValid resolves a key that is unconsumed, unexpired, and of the expected
// kind. Consumed keys yield ErrAuthKeyConsumed, expired ones ErrAuthKeyExpired.
func (a *authKeys) GetValid(ctx context.Context, id uuid.UUID, kind AuthKeyKind) (*AuthKey, error) {
	return a.GetValidTx(ctx, a.db, id, kind)
}

func (a *authKeys) GetValidTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind AuthKeyKind) (*AuthKey, error) {
	record := &AuthKey{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.kind = ?", kind).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id":   id.String(),
					"kind": kind,
				})
		}
		return nil, err
	}

	if record.Consumed() {
		return nil, ErrAuthKeyConsumed
	}

	if record.Expired() {
		return nil, ErrAuthKeyExpired
	}

	return record, nil
}

// Consume marks a key used. A key that was already consumed (or never
// existed) fails with ErrAuthKeyConsumed and causes no side effects.
func (a *authKeys) Consume(ctx context.Context, id uuid.UUID) (*AuthKey, error) {
	return a.ConsumeTx(ctx, a.db, id)
}

func (a *authKeys) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*AuthKey, error) {
	res, err := a.Repository.RawTx(ctx, tx, consumeAuthKeySQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrAuthKeyConsumed
	}

	return res[0], nil
}
