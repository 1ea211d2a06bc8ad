package repositories

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/errors"
	"conversation-engine/internal/pbstruct"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const accountPrefix = "acct:"

type IAccountRepository interface {
	Register(ctx context.Context, userID string) (domain.Account, error)
	MarkDeleted(ctx context.Context, userID string) error
	Lookup(ctx context.Context, userID string) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
}

// AccountRepository is the account oracle backed by BadgerDB.
// It only knows whether a user exists and whether the account was deleted.
type AccountRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewAccountRepository(db *badger.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

type diskAccount struct {
	ID        string `json:"id"`
	Deleted   bool   `json:"deleted"`
	CreatedAt int64  `json:"created_at"`
}

func (a *AccountRepository) Register(ctx context.Context, userID string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	if userID == "" {
		return domain.Account{}, fmt.Errorf("%w: empty user id", errors.ErrInvalidRequest)
	}
	account := diskAccount{ID: userID, CreatedAt: a.now().Unix()}
	data, err := pbstruct.Marshal(account)
	if err != nil {
		return domain.Account{}, err
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		key := []byte(accountPrefix + userID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", errors.ErrUserAlreadyExists, userID)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return toAccount(account), nil
}

// MarkDeleted flags the account as deleted. The record is kept so that
// conversations can still tell a deleted user from an unknown one.
func (a *AccountRepository) MarkDeleted(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		key := []byte(accountPrefix + userID)
		account, err := readAccount(txn, key)
		if err != nil {
			return err
		}
		account.Deleted = true
		data, err := pbstruct.Marshal(account)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (a *AccountRepository) Lookup(ctx context.Context, userID string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	var account diskAccount
	err := a.db.View(func(txn *badger.Txn) error {
		var err error
		account, err = readAccount(txn, []byte(accountPrefix+userID))
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}
	return toAccount(account), nil
}

func (a *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := []byte(accountPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				var account diskAccount
				if err := pbstruct.Unmarshal(value, &account); err != nil {
					return err
				}
				accounts = append(accounts, toAccount(account))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return accounts, err
}

func readAccount(txn *badger.Txn, key []byte) (diskAccount, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return diskAccount{}, fmt.Errorf("%w: %s", errors.ErrUnknownUser, key[len(accountPrefix):])
	}
	if err != nil {
		return diskAccount{}, err
	}
	var account diskAccount
	err = item.Value(func(value []byte) error {
		return pbstruct.Unmarshal(value, &account)
	})
	return account, err
}

func toAccount(account diskAccount) domain.Account {
	return domain.Account{
		ID:        account.ID,
		Deleted:   account.Deleted,
		CreatedAt: time.Unix(account.CreatedAt, 0).UTC(),
	}
}
