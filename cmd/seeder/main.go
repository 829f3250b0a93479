//cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/agentzero/phishsim-backend/internal/db"
	"github.com/agentzero/phishsim-backend/internal/model"
	"github.com/agentzero/phishsim-backend/internal/repository"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := db.EnsureSchema(conn); err != nil {
		log.Fatal(err)
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	campaign := &model.Campaign{
		Name:    "Q3 Security Awareness",
		Subject: "Action required: verify your account",
		BaseTemplate: `<p>Hi {name},</p>
<p>We noticed unusual activity on your account. Please
<a href="https://portal.example.com/verify">verify your credentials</a>
within 24 hours.</p>`,
	}
	if err := campaignRepo.Create(campaign); err != nil {
		log.Fatalf("failed to seed campaign: %v", err)
	}
	fmt.Println("Seeded campaign:", campaign.ID)

	recipients := []model.Recipient{
		{Email: "alice@example.com", Name: "Alice Smith"},
		{Email: "bob@example.com", Name: "Bob Jones"},
		{Email: "carol@example.com", Name: "Carol White"},
	}
	for _, rec := range recipients {
		rec.CampaignID = campaign.ID
		if err := recipientRepo.Create(&rec); err != nil {
			log.Fatalf("failed to seed recipient %s: %v", rec.Email, err)
		}
		fmt.Println("Seeded recipient:", rec.Email)
	}

	fmt.Println("Database seeding completed successfully!")
}
