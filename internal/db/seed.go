package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultQuestions is the catalog installed into an empty questions table.
func DefaultQuestions() []Question {
	return []Question{
		{
			Text:     "Do you drink alcohol?",
			Category: "lifestyle",
			Options: []QuestionOption{
				{Text: "Never", Value: "never"},
				{Text: "Occasionally", Value: "occasionally"},
				{Text: "Socially", Value: "socially"},
				{Text: "Regularly", Value: "regularly"},
			},
			IsMandatory: true,
			SortOrder:   1,
		},
		{
			Text:     "What's your typical bedtime?",
			Category: "habits",
			Options: []QuestionOption{
				{Text: "Before 10 PM", Value: "early"},
				{Text: "10 PM - 12 AM", Value: "medium"},
				{Text: "After 12 AM", Value: "late"},
			},
			IsMandatory: true,
			SortOrder:   2,
		},
		{
			Text:     "Do you smoke?",
			Category: "lifestyle",
			Options: []QuestionOption{
				{Text: "Never", Value: "never"},
				{Text: "Occasionally", Value: "occasionally"},
				{Text: "Regularly", Value: "regularly"},
			},
			SortOrder: 3,
		},
		{
			Text:     "How often do you cook?",
			Category: "habits",
			Options: []QuestionOption{
				{Text: "Never", Value: "never"},
				{Text: "Sometimes", Value: "sometimes"},
				{Text: "Often", Value: "often"},
				{Text: "Daily", Value: "daily"},
			},
			SortOrder: 4,
		},
		{
			Text:     "How do you prefer to spend weekends?",
			Category: "preferences",
			Options: []QuestionOption{
				{Text: "Staying in", Value: "indoor"},
				{Text: "Going out", Value: "outdoor"},
				{Text: "Mix of both", Value: "mixed"},
			},
			SortOrder: 5,
		},
		{
			Text:     "How often do you exercise?",
			Category: "lifestyle",
			Options: []QuestionOption{
				{Text: "Never", Value: "never"},
				{Text: "1-2 times a week", Value: "light"},
				{Text: "3-4 times a week", Value: "moderate"},
				{Text: "5+ times a week", Value: "heavy"},
			},
			SortOrder: 6,
		},
	}
}

// SeedQuestions installs DefaultQuestions when the table is empty.
// Returns the number of rows inserted.
func SeedQuestions(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&Question{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	questions := DefaultQuestions()
	for i := range questions {
		questions[i].IsActive = true
	}
	if err := db.Create(&questions).Error; err != nil {
		return 0, fmt.Errorf("failed to seed questions: %w", err)
	}
	return len(questions), nil
}

// DefaultPersonalities is the trait catalog installed into an empty
// personalities table.
func DefaultPersonalities() []string {
	return []string{
		"Adventurous", "Ambitious", "Calm", "Creative", "Curious",
		"Funny", "Introverted", "Outgoing", "Romantic", "Thoughtful",
	}
}

// SeedPersonalities installs DefaultPersonalities when the table is empty.
// Returns the number of rows inserted.
func SeedPersonalities(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&Personality{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count personalities: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	names := DefaultPersonalities()
	rows := make([]Personality, len(names))
	for i, n := range names {
		rows[i] = Personality{Name: n}
	}
	if err := db.Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to seed personalities: %w", err)
	}
	return len(rows), nil
}

// SeedDemoData resets user-owned tables and populates demo users with
// questionnaire answers.
//
// Behavior:
//  1. Clears users, responses, matches, messages, notifications and connections.
//  2. Creates 20 verified users (10 male, 10 female), password "password".
//  3. Every user answers all questions; roughly a third mark alcohol as "same".
//  4. Every user gets two traits from the catalog.
//
// Compatible with both MySQL and SQLite.
func SeedDemoData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	tables := []string{
		"message_reads", "messages", "notifications", "matches", "connections",
		"response_answers", "user_responses", "device_tokens", "user_traits", "users",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		for _, t := range tables {
			db.Exec("ALTER TABLE " + t + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		for _, t := range tables {
			db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", t)
		}
	}
	log.Println("Cleared existing data")

	if _, err := SeedQuestions(db); err != nil {
		return err
	}
	if _, err := SeedPersonalities(db); err != nil {
		return err
	}
	var traits []Personality
	if err := db.Order("id").Find(&traits).Error; err != nil {
		return fmt.Errorf("failed to load personalities: %w", err)
	}
	var questions []Question
	if err := db.Where("is_active = ? AND is_deleted = ?", true, false).Order("sort_order").Find(&questions).Error; err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}

		last := time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour)
		user := User{
			Name:               fmt.Sprintf("User %d", i),
			Email:              fmt.Sprintf("user%d@example.com", i),
			PasswordHash:       string(hash),
			Nickname:           fmt.Sprintf("user%d", i),
			Gender:             gender,
			City:               "London",
			IsEmailVerified:    true,
			IsProfileCompleted: true,
			LastActiveAt:       &last,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		resp := UserResponse{
			UserID:                      user.ID,
			Gender:                      gender,
			MandatoryQuestionsCompleted: true,
		}
		if err := db.Create(&resp).Error; err != nil {
			return fmt.Errorf("failed to seed response: %w", err)
		}

		answers := make([]ResponseAnswer, 0, len(questions))
		for _, q := range questions {
			pref := PreferenceAny
			if q.SortOrder == 1 && i%3 == 0 {
				pref = PreferenceSame
			}
			answers = append(answers, ResponseAnswer{
				UserID:     user.ID,
				QuestionID: q.ID,
				Value:      q.Options[r.Intn(len(q.Options))].Value,
				Preference: pref,
			})
		}
		if err := db.Create(&answers).Error; err != nil {
			return fmt.Errorf("failed to seed answers: %w", err)
		}

		if len(traits) >= 2 {
			k := r.Intn(len(traits) - 1)
			picks := []UserTrait{
				{UserID: user.ID, PersonalityID: traits[k].ID},
				{UserID: user.ID, PersonalityID: traits[k+1].ID},
			}
			if err := db.Create(&picks).Error; err != nil {
				return fmt.Errorf("failed to seed traits: %w", err)
			}
		}
	}
	log.Println("Seeded 20 users with questionnaire answers.")

	return nil
}
