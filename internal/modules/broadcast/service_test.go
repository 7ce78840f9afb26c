package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ContentModel{}))
	return db
}

func upstreamWith(t *testing.T, broadcasts []kit.Broadcast) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/broadcasts":
			json.NewEncoder(w).Encode(map[string]interface{}{"broadcasts": broadcasts})
		case r.Method == http.MethodPost && r.URL.Path == "/broadcasts":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"broadcast": kit.Broadcast{ID: "new-1", Subject: body["subject"].(string)},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestImportIsIdempotent(t *testing.T) {
	srv := upstreamWith(t, []kit.Broadcast{
		{ID: "b1", Subject: "Weekly update", Content: "Hello", Public: true},
		{ID: "b2", Subject: "Private note", Content: "x", Public: false},
		{ID: "b3", Subject: "  ", Content: "x", Public: true},
	})
	defer srv.Close()

	db := newTestDB(t)
	svc := NewService(db, kit.New(srv.URL, "k"), zap.NewNop())
	ctx := context.Background()

	report, err := svc.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 2, report.Skipped, "private and subjectless broadcasts are skipped")

	var m models.ContentModel
	require.NoError(t, db.First(&m, "broadcast_id = ?", "b1").Error)
	assert.Equal(t, "weekly-update", m.Slug)
	assert.Equal(t, "Weekly update", m.Title)
	assert.True(t, m.Published)

	// Re-running imports nothing new.
	report, err = svc.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
}

func TestImportResolvesSlugCollision(t *testing.T) {
	srv := upstreamWith(t, []kit.Broadcast{
		{ID: "b1", Subject: "Hello!", Public: true},
		{ID: "b2", Subject: "Hello?", Public: true},
	})
	defer srv.Close()

	db := newTestDB(t)
	svc := NewService(db, kit.New(srv.URL, "k"), zap.NewNop())

	report, err := svc.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)

	var slugs []string
	require.NoError(t, db.Model(&models.ContentModel{}).Order("slug").Pluck("slug", &slugs).Error)
	assert.Equal(t, []string{"hello", "hello-2"}, slugs)
}

func TestExportLinksContent(t *testing.T) {
	srv := upstreamWith(t, nil)
	defer srv.Close()

	db := newTestDB(t)
	svc := NewService(db, kit.New(srv.URL, "k"), zap.NewNop())

	m := &models.ContentModel{Slug: "post", Title: "Post", Text: "Body", Published: true}
	require.NoError(t, db.Create(m).Error)

	b, err := svc.Export(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "new-1", b.ID)

	var reloaded models.ContentModel
	require.NoError(t, db.First(&reloaded, "id = ?", m.ID).Error)
	assert.Equal(t, "new-1", reloaded.BroadcastID)

	// Already linked content is refused.
	_, err = svc.Export(context.Background(), m.ID)
	assert.Error(t, err)

	// Unknown content id.
	b, err = svc.Export(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestListImported(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, zap.NewNop())

	require.NoError(t, db.Create(&models.ContentModel{Slug: "local", Title: "L", Text: "x"}).Error)
	require.NoError(t, db.Create(&models.ContentModel{Slug: "imported", Title: "I", Text: "x", BroadcastID: "b1"}).Error)

	items, pag, err := svc.ListImported(pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "imported", items[0].Slug)
	assert.Equal(t, int64(1), pag.Total)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "weekly-update-42", Slugify("Weekly Update #42"))
	assert.Equal(t, "hello", Slugify("  Hello!  "))
	assert.Equal(t, "broadcast", Slugify("???"))
}
