// Package orm is a thin, context-aware query builder over GORM.
//
// DB(ctx) binds to the transaction carried by ctx when there is one, so
// repository code does not care whether it runs inside Transaction:
//
//	err := orm.Transaction(ctx, func(ctx context.Context) error {
//	    return orm.DB(ctx).Create(&order)
//	})
package orm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/darcho/darcho/pkg/cache"
	"github.com/darcho/darcho/pkg/database"
)

// ErrNotFound is returned by First when no row matches.
var ErrNotFound = gorm.ErrRecordNotFound

// IsNotFound reports whether err means "no row".
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) }

type txKey struct{}

type Query struct {
	db       *gorm.DB
	preloads []preload
}

// preloads are applied only to row-loading finishers so Count stays a plain
// aggregate.
type preload struct {
	query string
	args  []interface{}
}

// Conn returns the raw *gorm.DB for ctx: the active transaction, or the
// global connection scoped to ctx.
func Conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return database.DB.WithContext(ctx)
}

func DB(ctx context.Context) *Query {
	return &Query{db: Conn(ctx)}
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}

// Transaction runs fn inside a DB transaction. Nested calls reuse the outer
// transaction. fn's error rolls everything back.
func Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (q *Query) wrap(db *gorm.DB) *Query { return &Query{db: db, preloads: q.preloads} }

func (q *Query) loader() *gorm.DB {
	db := q.db
	for _, p := range q.preloads {
		db = db.Preload(p.query, p.args...)
	}
	return db
}

func (q *Query) Model(v interface{}) *Query { return q.wrap(q.db.Model(v)) }
func (q *Query) Table(name string) *Query   { return q.wrap(q.db.Table(name)) }

func (q *Query) Where(query interface{}, args ...interface{}) *Query {
	return q.wrap(q.db.Where(query, args...))
}

func (q *Query) Or(query interface{}, args ...interface{}) *Query {
	return q.wrap(q.db.Or(query, args...))
}

func (q *Query) Not(query interface{}, args ...interface{}) *Query {
	return q.wrap(q.db.Not(query, args...))
}

func (q *Query) Select(query interface{}, args ...interface{}) *Query {
	return q.wrap(q.db.Select(query, args...))
}

func (q *Query) Joins(query string, args ...interface{}) *Query {
	return q.wrap(q.db.Joins(query, args...))
}

func (q *Query) Preload(query string, args ...interface{}) *Query {
	next := q.wrap(q.db)
	next.preloads = append(append([]preload(nil), q.preloads...), preload{query: query, args: args})
	return next
}

func (q *Query) Group(name string) *Query                    { return q.wrap(q.db.Group(name)) }
func (q *Query) Order(value interface{}) *Query              { return q.wrap(q.db.Order(value)) }
func (q *Query) Limit(n int) *Query                          { return q.wrap(q.db.Limit(n)) }
func (q *Query) Offset(n int) *Query                         { return q.wrap(q.db.Offset(n)) }
func (q *Query) Unscoped() *Query                            { return q.wrap(q.db.Unscoped()) }
func (q *Query) Scopes(fs ...func(*gorm.DB) *gorm.DB) *Query { return q.wrap(q.db.Scopes(fs...)) }

// ForUpdate adds a row lock on dialects that support it and is a no-op elsewhere.
func (q *Query) ForUpdate() *Query {
	if !database.SupportsRowLocks(q.db) {
		return q
	}
	return q.wrap(q.db.Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (q *Query) Get(dest interface{}) error   { return q.loader().Find(dest).Error }
func (q *Query) First(dest interface{}) error { return q.loader().First(dest).Error }
func (q *Query) Scan(dest interface{}) error  { return q.db.Scan(dest).Error }

func (q *Query) Count() (int64, error) {
	var n int64
	err := q.db.Count(&n).Error
	return n, err
}

func (q *Query) Exists() (bool, error) {
	n, err := q.Limit(1).Count()
	return n > 0, err
}

func (q *Query) Create(v interface{}) error { return q.db.Create(v).Error }
func (q *Query) Save(v interface{}) error   { return q.db.Save(v).Error }

// Updates applies column changes and returns the affected row count.
func (q *Query) Updates(values interface{}) (int64, error) {
	res := q.db.Updates(values)
	return res.RowsAffected, res.Error
}

// Update sets a single column and returns the affected row count.
func (q *Query) Update(column string, value interface{}) (int64, error) {
	res := q.db.Update(column, value)
	return res.RowsAffected, res.Error
}

// Delete removes rows matching the query (soft delete where the model has DeletedAt).
func (q *Query) Delete(v interface{}, conds ...interface{}) (int64, error) {
	res := q.db.Delete(v, conds...)
	return res.RowsAffected, res.Error
}

// Exec runs raw SQL on the bound connection.
func (q *Query) Exec(sql string, args ...interface{}) (int64, error) {
	res := q.db.Exec(sql, args...)
	return res.RowsAffected, res.Error
}

// Raw exposes the underlying *gorm.DB for queries the builder does not cover.
func (q *Query) Raw() *gorm.DB { return q.db }

// Cache reads the first matching row through the cache.
func (q *Query) Cache(ctx context.Context, key string, ttl time.Duration, dest interface{}) error {
	if cache.Get(ctx, key, dest) {
		return nil
	}
	if err := q.loader().First(dest).Error; err != nil {
		return err
	}
	_ = cache.Set(ctx, key, dest, ttl)
	return nil
}

// Forget drops cached rows by key.
func Forget(ctx context.Context, keys ...string) {
	_ = cache.Del(ctx, keys...)
}
