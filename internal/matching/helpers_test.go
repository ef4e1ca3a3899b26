package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobMatch/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, db *gorm.DB, user database.User) *database.User {
	t.Helper()
	if user.Username == "" {
		user.Username = "candidate-" + uuid.NewString()[:8]
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func seedOffer(t *testing.T, db *gorm.DB, offer database.JobOffer) *database.JobOffer {
	t.Helper()
	offer.IsActive = true
	if err := db.Create(&offer).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return &offer
}

// fakeBackend 按职位标题返回预设分数，可配置为全部失败或阻塞到超时。
type fakeBackend struct {
	mu sync.Mutex

	scores       map[string]float64
	explanations []string
	skills       Skills

	fail  bool
	block bool

	// gateTitle 非空时，对该职位的评分先关闭 gateReached，再等待 gate 关闭。
	gateTitle   string
	gate        chan struct{}
	gateReached chan struct{}
	gateOnce    sync.Once

	scoreCalls   int
	explainCalls int
	skillsCalls  int
}

func newFakeBackend(scores map[string]float64) *fakeBackend {
	return &fakeBackend{
		scores:       scores,
		explanations: []string{"strong Go background", "no Kubernetes experience"},
	}
}

func (b *fakeBackend) wait(ctx context.Context) error {
	if b.block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, ctx.Err())
	}
	if b.fail {
		return fmt.Errorf("%w: connection refused", ErrBackendUnavailable)
	}
	return nil
}

func (b *fakeBackend) Score(ctx context.Context, _ string, offerText string) (float64, error) {
	b.mu.Lock()
	b.scoreCalls++
	b.mu.Unlock()
	if err := b.wait(ctx); err != nil {
		return 0, err
	}
	title := strings.TrimPrefix(strings.SplitN(offerText, "\n", 2)[0], "Title: ")
	if b.gateTitle != "" && title == b.gateTitle {
		b.gateOnce.Do(func() {
			close(b.gateReached)
			<-b.gate
		})
	}
	return b.scores[title], nil
}

func (b *fakeBackend) Explain(ctx context.Context, _, _ string) ([]string, error) {
	b.mu.Lock()
	b.explainCalls++
	b.mu.Unlock()
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), b.explanations...), nil
}

func (b *fakeBackend) ExtractSkills(ctx context.Context, _ string) (Skills, error) {
	b.mu.Lock()
	b.skillsCalls++
	b.mu.Unlock()
	if err := b.wait(ctx); err != nil {
		return Skills{}, err
	}
	return b.skills, nil
}

func (b *fakeBackend) calls() (score, explain int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scoreCalls, b.explainCalls
}

// memResultStore 是内存版 ResultStore，记录重复的 (用户, 职位) 写入。
type memResultStore struct {
	mu sync.Mutex

	rows       []database.MatchResult
	nextID     uint
	inserts    int
	duplicates int

	// failInsertAt 为第几次 Insert 返回错误（从 1 开始），0 表示不失败。
	failInsertAt int
}

func (s *memResultStore) Insert(_ context.Context, result *database.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.failInsertAt > 0 && s.inserts == s.failInsertAt {
		return errors.New("insert failed: disk full")
	}
	for _, r := range s.rows {
		if r.UserID == result.UserID && r.JobOfferID == result.JobOfferID {
			s.duplicates++
		}
	}
	s.nextID++
	result.ID = s.nextID
	s.rows = append(s.rows, *result)
	return nil
}

func (s *memResultStore) DeleteAllForUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *memResultStore) FindForUser(_ context.Context, userID uint) ([]database.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.MatchResult
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memResultStore) FindForUserCreatedAfter(ctx context.Context, userID uint, ts time.Time) ([]database.MatchResult, error) {
	all, _ := s.FindForUser(ctx, userID)
	var out []database.MatchResult
	for _, r := range all {
		if r.CreatedAt.After(ts) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memResultStore) ReplaceForUser(ctx context.Context, userID uint, results []database.MatchResult) error {
	_ = s.DeleteAllForUser(ctx, userID)
	for i := range results {
		if err := s.Insert(ctx, &results[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeCVFiles struct {
	files map[string][]byte
	err   error
}

func (f *fakeCVFiles) ReadCV(_ context.Context, filename string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[filename]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file or directory", filename)
	}
	return data, nil
}

type serviceFixture struct {
	db      *gorm.DB
	backend *fakeBackend
	svc     *Service
	now     time.Time
}

func newServiceFixture(t *testing.T, backend *fakeBackend, results ResultStore, opts Options) *serviceFixture {
	t.Helper()
	db := newTestDB(t)
	if results == nil {
		results = NewGormResultStore(db)
	}
	if opts.CacheDuration == 0 {
		opts.CacheDuration = 24 * time.Hour
	}

	svc := NewService(Deps{
		Users:     NewGormUserStore(db),
		Offers:    NewGormOfferCatalog(db),
		Results:   results,
		Extractor: PlainTextExtractor{},
		Backend:   backend,
		CVFiles:   &fakeCVFiles{files: map[string][]byte{}},
		Logger:    discardLogger(),
	}, opts)

	f := &serviceFixture{db: db, backend: backend, svc: svc, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	svc.randFloat = func() float64 { return 0.5 }
	return f
}

func cvUser(uploadedAt time.Time) database.User {
	ms := uploadedAt.UnixMilli()
	return database.User{
		CVData:       []byte("Go developer, 5 years of PostgreSQL and Redis"),
		CVUploadDate: &ms,
	}
}
