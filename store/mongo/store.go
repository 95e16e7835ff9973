// Package mongo implements store.Store on MongoDB. RunInTx uses a session
// transaction with snapshot read concern and majority write concern, which
// requires a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	loanstore "github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/user"
)

// Collection name constants.
const (
	colClients       = "Clients"
	colDisbursements = "Disbursement"
	colPayments      = "DailyList"
	colUsers         = "Users"
)

// compile-time interface check
var _ loanstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	c, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("loanbook/mongo: connect: %w", err)
	}
	s := New(c, database)
	if err := s.Ping(ctx); err != nil {
		_ = c.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New creates a store on an existing client.
func New(c *mongo.Client, database string) *Store {
	return &Store{client: c, db: c.Database(database)}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all loanbook collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("loanbook/mongo: %w: %s indexes: %w", loanbook.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("loanbook/mongo: %w: %w", loanbook.ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	if _, err := s.db.Collection(colClients).InsertOne(ctx, toClientModel(c)); err != nil {
		return wrapWrite("create client", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, s.db, clientID)
}

func (s *Store) ListClients(ctx context.Context, opts client.ListOpts) ([]*client.Client, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["Status"] = string(opts.Status)
	}
	if opts.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(opts.Search), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"ClientName": pattern}, bson.M{"Nickname": pattern}}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "ClientName", Value: 1}, {Key: "_id", Value: 1}})
	applyPage(findOpts, opts.Limit, opts.Offset)

	var models []clientModel
	if err := findAll(ctx, s.db.Collection(colClients), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("loanbook/mongo: list clients: %w", err)
	}

	out := make([]*client.Client, 0, len(models))
	for i := range models {
		c, err := fromClientModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ==================== Disbursement Store ====================

func (s *Store) GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	return getDisbursement(ctx, s.db, disbursementID)
}

func (s *Store) ListDisbursements(ctx context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error) {
	filter := bson.M{}
	if !opts.ClientID.IsNil() {
		filter["clientId"] = opts.ClientID.String()
	}
	if opts.Status != "" {
		filter["Status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "DateToday", Value: -1}, {Key: "_id", Value: -1}})
	applyPage(findOpts, opts.Limit, opts.Offset)

	var models []disbursementModel
	if err := findAll(ctx, s.db.Collection(colDisbursements), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("loanbook/mongo: list disbursements: %w", err)
	}

	out := make([]*disbursement.Disbursement, 0, len(models))
	for i := range models {
		d, err := fromDisbursementModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, s.db, paymentID)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	filter := bson.M{}
	if !opts.ClientID.IsNil() {
		filter["clientId"] = opts.ClientID.String()
	}
	if !opts.DisbursementID.IsNil() {
		filter["DisbursementID"] = opts.DisbursementID.String()
	}
	if !opts.From.IsZero() || !opts.To.IsZero() {
		window := bson.M{}
		if !opts.From.IsZero() {
			window["$gte"] = opts.From
		}
		if !opts.To.IsZero() {
			window["$lt"] = opts.To
		}
		filter["DateToday"] = window
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "DateToday", Value: -1}, {Key: "_id", Value: -1}})
	applyPage(findOpts, opts.Limit, opts.Offset)

	var models []paymentModel
	if err := findAll(ctx, s.db.Collection(colPayments), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("loanbook/mongo: list payments: %w", err)
	}

	out := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if _, err := s.db.Collection(colUsers).InsertOne(ctx, toUserModel(u)); err != nil {
		return wrapWrite("create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	var m userModel
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loanbook.ErrUserNotFound
		}
		return nil, fmt.Errorf("loanbook/mongo: get user: %w", err)
	}
	return fromUserModel(&m)
}

// ==================== Transactions ====================

// RunInTx runs fn in a session transaction. The driver retries transient
// transaction errors, including write conflicts, on its own; one that still
// fails is reported as loanbook.ErrTxConflict.
func (s *Store) RunInTx(ctx context.Context, fn loanstore.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("loanbook/mongo: %w: start session: %w", loanbook.ErrStoreUnavailable, err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(sc, &tx{db: s.db})
	}, txnOpts)
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %w", loanbook.ErrTxConflict, err)
	}
	return err
}

// tx issues every operation with the session context handed to the
// transaction body, which binds it to the transaction.
type tx struct {
	db *mongo.Database
}

func (t *tx) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, t.db, clientID)
}

func (t *tx) UpdateClient(ctx context.Context, c *client.Client) error {
	res, err := t.db.Collection(colClients).ReplaceOne(ctx, bson.M{"_id": c.ID.String()}, toClientModel(c))
	if err != nil {
		return fmt.Errorf("loanbook/mongo: update client: %w", err)
	}
	if res.MatchedCount == 0 {
		return loanbook.ErrClientNotFound
	}
	return nil
}

func (t *tx) GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	return getDisbursement(ctx, t.db, disbursementID)
}

func (t *tx) CreateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	if _, err := t.db.Collection(colDisbursements).InsertOne(ctx, toDisbursementModel(d)); err != nil {
		return wrapWrite("create disbursement", err)
	}
	return nil
}

func (t *tx) UpdateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	res, err := t.db.Collection(colDisbursements).ReplaceOne(ctx, bson.M{"_id": d.ID.String()}, toDisbursementModel(d))
	if err != nil {
		return fmt.Errorf("loanbook/mongo: update disbursement: %w", err)
	}
	if res.MatchedCount == 0 {
		return loanbook.ErrDisbursementNotFound
	}
	return nil
}

func (t *tx) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, t.db, paymentID)
}

func (t *tx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if _, err := t.db.Collection(colPayments).InsertOne(ctx, toPaymentModel(p)); err != nil {
		return wrapWrite("create payment", err)
	}
	return nil
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	res, err := t.db.Collection(colPayments).ReplaceOne(ctx, bson.M{"_id": p.ID.String()}, toPaymentModel(p))
	if err != nil {
		return fmt.Errorf("loanbook/mongo: update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return loanbook.ErrPaymentNotFound
	}
	return nil
}

func (t *tx) DeletePayment(ctx context.Context, paymentID id.PaymentID) error {
	res, err := t.db.Collection(colPayments).DeleteOne(ctx, bson.M{"_id": paymentID.String()})
	if err != nil {
		return fmt.Errorf("loanbook/mongo: delete payment: %w", err)
	}
	if res.DeletedCount == 0 {
		return loanbook.ErrPaymentNotFound
	}
	return nil
}

// ==================== Shared queries ====================

func getClient(ctx context.Context, db *mongo.Database, clientID id.ClientID) (*client.Client, error) {
	var m clientModel
	err := db.Collection(colClients).FindOne(ctx, bson.M{"_id": clientID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loanbook.ErrClientNotFound
		}
		return nil, fmt.Errorf("loanbook/mongo: get client: %w", err)
	}
	return fromClientModel(&m)
}

func getDisbursement(ctx context.Context, db *mongo.Database, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	var m disbursementModel
	err := db.Collection(colDisbursements).FindOne(ctx, bson.M{"_id": disbursementID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loanbook.ErrDisbursementNotFound
		}
		return nil, fmt.Errorf("loanbook/mongo: get disbursement: %w", err)
	}
	return fromDisbursementModel(&m)
}

func getPayment(ctx context.Context, db *mongo.Database, paymentID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := db.Collection(colPayments).FindOne(ctx, bson.M{"_id": paymentID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loanbook.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("loanbook/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func findAll(ctx context.Context, col *mongo.Collection, filter bson.M, opts *options.FindOptionsBuilder, out any) error {
	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func applyPage(opts *options.FindOptionsBuilder, limit, offset int) {
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
}

func wrapWrite(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("loanbook/mongo: %s: %w", op, loanbook.ErrAlreadyExists)
	}
	return fmt.Errorf("loanbook/mongo: %s: %w", op, err)
}

func isTransient(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError")
	}
	return false
}

// isNoDocuments checks for the mongo.ErrNoDocuments sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all loanbook collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colClients: {
			{Keys: bson.D{{Key: "ClientName", Value: 1}}},
			{Keys: bson.D{{Key: "Status", Value: 1}}},
		},
		colDisbursements: {
			{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "DateToday", Value: -1}}},
			{Keys: bson.D{{Key: "Status", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "DateToday", Value: -1}}},
			{Keys: bson.D{{Key: "DisbursementID", Value: 1}}},
			{Keys: bson.D{{Key: "DateToday", Value: -1}}},
		},
		colUsers: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
