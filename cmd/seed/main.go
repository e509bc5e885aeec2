package main

import (
	"encoding/json"
	"log"
	"os"

	"ai-docassist-be/internal/model"
	"ai-docassist-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/datatypes"
)

type seedDocument struct {
	Title   string
	Content string
	Summary string
	Tags    []string
}

var seedDocuments = []seedDocument{
	{
		Title:   "Alpha Corp Invoice March",
		Content: "Invoice #2024-031 issued to Alpha Corp for consulting services rendered in March. Total amount due: 12,400 EUR, payable within 30 days. Line items cover architecture review and migration planning.",
		Summary: "March consulting invoice for Alpha Corp, 12,400 EUR net 30.",
		Tags:    []string{"invoice", "finance", "alpha-corp"},
	},
	{
		Title:   "Beta Ltd Service Contract",
		Content: "Master service agreement between our company and Beta Ltd, effective January 1st. Covers support tiers, response times, and a 12 month renewal clause. Termination requires 60 days written notice.",
		Summary: "Service contract with Beta Ltd, 12 month term, 60 day termination notice.",
		Tags:    []string{"contract", "legal", "beta-ltd"},
	},
	{
		Title:   "Q2 Infrastructure Roadmap",
		Content: "Planned infrastructure work for Q2: migrate the remaining services to the new cluster, introduce connection pooling on the primary database, and retire the legacy queue. Risks and rollback plans included per item.",
		Summary: "Q2 plan: cluster migration, database pooling, legacy queue retirement.",
		Tags:    []string{"roadmap", "infrastructure"},
	},
	{
		Title:   "Onboarding Checklist",
		Content: "Checklist for new engineers: accounts and access on day one, development environment by day three, first supervised deploy within two weeks. Includes links to the style guide and the on-call handbook.",
		Summary: "New engineer onboarding steps for the first two weeks.",
		Tags:    []string{"onboarding", "process"},
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	userIdStr := os.Getenv("SEED_USER_ID")
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		log.Fatalf("Error: SEED_USER_ID must be a valid UUID, got %q", userIdStr)
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Printf("Seeding %d demo documents for user %s...", len(seedDocuments), userId)

	for _, doc := range seedDocuments {
		tags, _ := json.Marshal(doc.Tags)
		row := model.Document{
			Id:      uuid.New(),
			Title:   doc.Title,
			Content: doc.Content,
			Summary: doc.Summary,
			Tags:    datatypes.JSON(tags),
			UserId:  userId,
		}
		if err := db.Create(&row).Error; err != nil {
			log.Printf("Warn: Failed to seed %q: %v", doc.Title, err)
			continue
		}
		log.Printf("Seeded: %s (%s)", doc.Title, row.Id)
	}

	log.Println("✅ Seeding complete. Run the server and create/update a document to trigger embedding, or re-save each document via the API.")
}
