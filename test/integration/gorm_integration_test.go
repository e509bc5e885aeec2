package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"ai-docassist-be/internal/entity"
	"ai-docassist-be/internal/repository/specification"
	"ai-docassist-be/internal/repository/unitofwork"
	"ai-docassist-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.DocumentRepository())
	assert.NotNil(t, uow.DocumentEmbeddingRepository())
	assert.NotNil(t, uow.ChatSessionRepository())
	assert.NotNil(t, uow.ChatMessageRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)

	t.Run("Check Document Repository", func(t *testing.T) {
		count, err := uow.DocumentRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Document count: %d", count)
	})

	t.Run("Check Chat Message Repository", func(t *testing.T) {
		count, err := uow.ChatMessageRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("ChatMessage count: %d", count)
	})

	t.Run("Document CRUD Round Trip", func(t *testing.T) {
		ctx := context.Background()
		userId := uuid.New()
		doc := &entity.Document{
			Id:      uuid.New(),
			Title:   "Integration Test Document",
			Content: "Content for the integration round trip.",
			Summary: "Integration round trip.",
			Tags:    []string{"integration", "test"},
			UserId:  userId,
		}

		require.NoError(t, uow.DocumentRepository().Create(ctx, doc))

		found, err := uow.DocumentRepository().FindOne(ctx,
			specification.ByID{ID: doc.Id},
			specification.UserOwnedBy{UserID: userId},
		)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, doc.Title, found.Title)
		assert.Equal(t, []string{"integration", "test"}, found.Tags)

		require.NoError(t, uow.DocumentRepository().Delete(ctx, doc.Id))

		gone, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: doc.Id})
		require.NoError(t, err)
		assert.Nil(t, gone, "soft-deleted document should not be found")
	})
}
