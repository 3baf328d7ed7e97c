// Package firestore is the hierarchical document expense store:
// {collection}/{year}/records/{auto-id}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	// DefaultCollection is the top-level collection holding one document per year.
	DefaultCollection = "expenses"

	recordsCollection = "records"
)

var errNoClient = errors.New("firestore client not initialized")

type expenseDoc struct {
	Date        string    `firestore:"date"`
	Category    string    `firestore:"category"`
	Description string    `firestore:"description"`
	Amount      float64   `firestore:"amount"`
	Year        string    `firestore:"year"`
	SourceFile  string    `firestore:"source_file"`
	ImportedAt  time.Time `firestore:"imported_at"`
}

func (d expenseDoc) persisted(id string) domain.PersistedExpense {
	return domain.PersistedExpense{
		ID:   id,
		Year: d.Year,
		Expense: domain.Expense{
			Date:        d.Date,
			Category:    d.Category,
			Description: d.Description,
			Amount:      d.Amount,
		},
		SourceFile: d.SourceFile,
		ImportedAt: d.ImportedAt,
	}
}

// ExpenseRepository is the document storage.Store. A nil client yields a
// degraded store: saves report an error status and reads fail with
// storage.ErrUnavailable.
type ExpenseRepository struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger
	stamper    *storage.Stamper
}

var _ storage.Store = (*ExpenseRepository)(nil)

// NewExpenseRepository creates a client for projectID.
func NewExpenseRepository(ctx context.Context, projectID, collection string, log zerolog.Logger, opts ...option.ClientOption) (*ExpenseRepository, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExpenseRepository: creating client: %w", err)
	}
	return NewExpenseRepositoryWithClient(client, collection, log), nil
}

// NewExpenseRepositoryWithClient wraps an existing client, which may be nil.
func NewExpenseRepositoryWithClient(client *firestore.Client, collection string, log zerolog.Logger) *ExpenseRepository {
	if collection == "" {
		collection = DefaultCollection
	}
	return &ExpenseRepository{
		client:     client,
		collection: collection,
		log:        log.With().Str("backend", storage.BackendFirestore).Str("collection", collection).Logger(),
		stamper:    storage.NewStamper(nil),
	}
}

// Close closes the client connection.
func (r *ExpenseRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ExpenseRepository) yearDoc(year string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(year)
}

func (r *ExpenseRepository) records(year string) *firestore.CollectionRef {
	return r.yearDoc(year).Collection(recordsCollection)
}

type span struct{ start, end int }

// batchSpans splits n writes into commits of at most size writes, the first
// of which also carries reserved extra writes.
func batchSpans(n, size, reserved int) []span {
	var out []span
	start := 0
	room := size - reserved
	for start < n {
		end := start + room
		if end > n {
			end = n
		}
		out = append(out, span{start, end})
		start = end
		room = size
	}
	return out
}

// SaveExpenses writes records in batches of storage.MaxBatchSize. The first
// batch also upserts the year marker document. Batches are independent: a
// failed commit stops the save but earlier batches stay committed.
func (r *ExpenseRepository) SaveExpenses(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
	var tally storage.ImportTally
	if r.client == nil {
		r.log.Error().Msg("save with no client")
		return tally.Fatal(len(records), errNoClient)
	}

	type pending struct {
		index int
		doc   expenseDoc
	}
	valid := make([]pending, 0, len(records))
	for i, e := range records {
		if err := storage.ValidateExpense(e); err != nil {
			r.log.Warn().Err(err).Int("index", i).Msg("skipping invalid expense")
			tally.Fail(i, err)
			continue
		}
		valid = append(valid, pending{index: i, doc: expenseDoc{
			Date:        e.Date,
			Category:    e.Category,
			Description: e.Description,
			Amount:      e.Amount,
			Year:        year,
			SourceFile:  sourceFile,
			ImportedAt:  r.stamper.Next(),
		}})
	}
	if len(valid) == 0 {
		return tally.Result()
	}

	coll := r.records(year)
	for n, s := range batchSpans(len(valid), storage.MaxBatchSize, 1) {
		batch := r.client.Batch()
		if n == 0 {
			batch.Set(r.yearDoc(year), map[string]interface{}{
				"year":       year,
				"updated_at": firestore.ServerTimestamp,
			}, firestore.MergeAll)
		}
		for _, p := range valid[s.start:s.end] {
			batch.Set(coll.NewDoc(), p.doc)
		}
		if _, err := batch.Commit(ctx); err != nil {
			r.log.Error().Err(err).Int("batch", n).Int("committed", tally.Imported).Msg("batch commit failed")
			return tally.Fatal(len(records), fmt.Errorf("SaveExpenses: commit batch %d: %w", n, err))
		}
		tally.Imported += s.end - s.start
	}

	r.log.Info().Str("year", year).Int("imported", tally.Imported).Int("skipped", tally.Skipped).Msg("saved expenses")
	return tally.Result()
}

func (r *ExpenseRepository) collect(it *firestore.DocumentIterator) ([]domain.PersistedExpense, error) {
	defer it.Stop()

	out := []domain.PersistedExpense{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		var d expenseDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Ref.ID, err)
		}
		out = append(out, d.persisted(snap.Ref.ID))
	}
	return out, nil
}

// GetExpensesByYear returns the year's records, newest date first.
func (r *ExpenseRepository) GetExpensesByYear(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error) {
	if r.client == nil {
		return []domain.PersistedExpense{}, storage.Unavailable("GetExpensesByYear", errNoClient)
	}

	q := r.records(year).OrderBy("date", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	out, err := r.collect(q.Documents(ctx))
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("get expenses failed")
		return []domain.PersistedExpense{}, storage.Unavailable("GetExpensesByYear", err)
	}
	return out, nil
}

func (r *ExpenseRepository) hasRecords(ctx context.Context, year string) (bool, error) {
	docs, err := r.records(year).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// GetAllYears lists year documents that still hold records, newest first.
// Year documents with only a subcollection are listed as missing documents,
// so DocumentRefs is used rather than a query.
func (r *ExpenseRepository) GetAllYears(ctx context.Context) ([]string, error) {
	if r.client == nil {
		return []string{}, storage.Unavailable("GetAllYears", errNoClient)
	}

	years := []string{}
	it := r.client.Collection(r.collection).DocumentRefs(ctx)
	for {
		ref, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			r.log.Error().Err(err).Msg("list years failed")
			return []string{}, storage.Unavailable("GetAllYears", err)
		}
		ok, err := r.hasRecords(ctx, ref.ID)
		if err != nil {
			r.log.Error().Err(err).Str("year", ref.ID).Msg("probe year failed")
			return []string{}, storage.Unavailable("GetAllYears", err)
		}
		if ok {
			years = append(years, ref.ID)
		}
	}
	storage.SortYearsDesc(years)
	return years, nil
}

// GetYearStatistics aggregates the year's records in memory.
func (r *ExpenseRepository) GetYearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	if r.client == nil {
		return domain.EmptyYearStats(year), storage.Unavailable("GetYearStatistics", errNoClient)
	}

	records, err := r.collect(r.records(year).Documents(ctx))
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("statistics failed")
		return domain.EmptyYearStats(year), storage.Unavailable("GetYearStatistics", err)
	}
	return storage.BuildYearStats(year, records), nil
}

// DeleteExpensesByYear deletes records in batches of storage.MaxBatchSize
// until none remain, then the year document itself.
func (r *ExpenseRepository) DeleteExpensesByYear(ctx context.Context, year string) domain.DeleteResult {
	if r.client == nil {
		return domain.DeleteResult{Status: domain.StatusError, Message: errNoClient.Error()}
	}

	deleted := 0
	fail := func(err error) domain.DeleteResult {
		r.log.Error().Err(err).Str("year", year).Int("deleted", deleted).Msg("delete failed")
		return domain.DeleteResult{Status: domain.StatusError, Deleted: deleted, Message: err.Error()}
	}

	for {
		docs, err := r.records(year).Limit(storage.MaxBatchSize).Documents(ctx).GetAll()
		if err != nil {
			return fail(fmt.Errorf("DeleteExpensesByYear: list: %w", err))
		}
		if len(docs) == 0 {
			break
		}
		batch := r.client.Batch()
		for _, d := range docs {
			batch.Delete(d.Ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fail(fmt.Errorf("DeleteExpensesByYear: commit: %w", err))
		}
		deleted += len(docs)
	}

	if _, err := r.yearDoc(year).Delete(ctx); err != nil {
		return fail(fmt.Errorf("DeleteExpensesByYear: year document: %w", err))
	}

	r.log.Info().Str("year", year).Int("deleted", deleted).Msg("deleted year")
	return domain.DeleteResult{
		Status:  domain.StatusOK,
		Deleted: deleted,
		Message: fmt.Sprintf("Deleted %d expenses from %s", deleted, year),
	}
}

// SearchExpenses reads the candidate partitions and filters in memory.
func (r *ExpenseRepository) SearchExpenses(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error) {
	if r.client == nil {
		return []domain.PersistedExpense{}, storage.Unavailable("SearchExpenses", errNoClient)
	}

	years := []string{f.Year}
	if f.Year == "" {
		var err error
		if years, err = r.GetAllYears(ctx); err != nil {
			return []domain.PersistedExpense{}, err
		}
	}

	out := []domain.PersistedExpense{}
	for _, y := range years {
		records, err := r.collect(r.records(y).Documents(ctx))
		if err != nil {
			r.log.Error().Err(err).Str("year", y).Msg("search failed")
			return []domain.PersistedExpense{}, storage.Unavailable("SearchExpenses", err)
		}
		for _, rec := range records {
			if f.Match(rec) {
				out = append(out, rec)
			}
		}
	}
	storage.SortByDateDesc(out)
	return out, nil
}
