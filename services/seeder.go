package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	store repository.Store
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(store repository.Store) *DatabaseSeeder {
	return &DatabaseSeeder{store: store}
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	// Hash default password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Create test users (no admin users for security)
	users := []models.User{
		{
			Email:    "test@example.com",
			Password: string(hashedPassword),
			FullName: "Test User",
			Role:     "user",
		},
		{
			Email:    "demo@example.com",
			Password: string(hashedPassword),
			FullName: "Demo User",
			Role:     "user",
		},
	}

	// Seed users (idempotent)
	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	// Get the first user for creating sample resumes
	firstUser, err := s.store.GetUserByEmail(ctx, "test@example.com")
	if err != nil {
		return fmt.Errorf("failed to get test user: %w", err)
	}
	if firstUser == nil {
		return fmt.Errorf("test user not found")
	}

	// Create sample resumes covering the difficulty tiers
	sampleResumes := []models.Resume{
		{
			UserID:          firstUser.ID,
			Identifier:      "junior-backend",
			YearsExperience: 2,
			Domains:         models.StringList{"backend", "databases"},
			Summary:         "Two years building REST APIs in a payments startup.",
		},
		{
			UserID:          firstUser.ID,
			Identifier:      "mid-level-fullstack",
			YearsExperience: 5,
			Domains:         models.StringList{"backend", "frontend", "cloud infrastructure"},
			Summary:         "Five years across the stack, currently leading a small feature team.",
		},
		{
			UserID:          firstUser.ID,
			Identifier:      "senior-distributed-systems",
			YearsExperience: 11,
			Domains:         models.StringList{"distributed systems", "databases", "observability"},
			Summary:         "Staff engineer working on storage and replication for a decade.",
		},
	}

	// Seed sample resumes (idempotent)
	for _, resume := range sampleResumes {
		if err := s.seedResume(ctx, resume); err != nil {
			slog.Error("Failed to seed resume", "identifier", resume.Identifier, "error", err)
		}
	}

	slog.Info("Database seeding completed successfully")
	return nil
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	// Check if user already exists
	existingUser, err := s.store.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}

	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	// User doesn't exist, create it
	user.ID = uuid.New().String()
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}

// seedResume seeds a single resume, matching on identifier (idempotent)
func (s *DatabaseSeeder) seedResume(ctx context.Context, resume models.Resume) error {
	resumes, err := s.store.ListResumes(ctx, resume.UserID)
	if err != nil {
		return fmt.Errorf("error checking resumes: %w", err)
	}

	for _, existing := range resumes {
		if existing.Identifier == resume.Identifier {
			slog.Info("Resume already exists, skipping", "identifier", resume.Identifier)
			return nil
		}
	}

	resume.ID = uuid.New().String()
	if err := s.store.CreateResume(ctx, &resume); err != nil {
		return fmt.Errorf("failed to create resume %s: %w", resume.Identifier, err)
	}

	slog.Info("Created resume", "identifier", resume.Identifier, "user_id", resume.UserID)
	return nil
}
