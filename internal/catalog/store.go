package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type problemRecord struct {
	ID          string `gorm:"primaryKey"`
	Position    int    `gorm:"index"`
	Title       string
	Description string
	Difficulty  string
	StarterCode string
	TestCases   []testCaseRecord `gorm:"foreignKey:ProblemID;constraint:OnDelete:CASCADE"`
	Examples    []exampleRecord  `gorm:"foreignKey:ProblemID;constraint:OnDelete:CASCADE"`
}

func (problemRecord) TableName() string { return "problems" }

type testCaseRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ProblemID string `gorm:"index"`
	Position  int
	Input     string
	Expected  string
}

func (testCaseRecord) TableName() string { return "test_cases" }

type exampleRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ProblemID   string `gorm:"index"`
	Position    int
	Input       string
	Output      string
	Explanation string
}

func (exampleRecord) TableName() string { return "examples" }

// OpenDB connects to Postgres with gorm query logging silenced.
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&problemRecord{}, &testCaseRecord{}, &exampleRecord{})
}

// Seed inserts problems only when the problems table is empty.
func Seed(ctx context.Context, db *gorm.DB, problems []Problem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&problemRecord{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		records := toRecords(problems)
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}

// Load reads every problem ordered by position.
func Load(ctx context.Context, db *gorm.DB) (*Catalog, error) {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position") }

	var records []problemRecord
	err := db.WithContext(ctx).
		Preload("TestCases", byPosition).
		Preload("Examples", byPosition).
		Order("position").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	return New(fromRecords(records))
}

func toRecords(problems []Problem) []problemRecord {
	out := make([]problemRecord, 0, len(problems))
	for i, p := range problems {
		rec := problemRecord{
			ID:          p.ID,
			Position:    i,
			Title:       p.Title,
			Description: p.Description,
			Difficulty:  string(p.Difficulty),
			StarterCode: p.StarterCode,
		}
		for j, tc := range p.TestCases {
			rec.TestCases = append(rec.TestCases, testCaseRecord{
				ProblemID: p.ID,
				Position:  j,
				Input:     string(tc.Input),
				Expected:  string(tc.Expected),
			})
		}
		for j, ex := range p.Examples {
			rec.Examples = append(rec.Examples, exampleRecord{
				ProblemID:   p.ID,
				Position:    j,
				Input:       string(ex.Input),
				Output:      string(ex.Output),
				Explanation: ex.Explanation,
			})
		}
		out = append(out, rec)
	}
	return out
}

func fromRecords(records []problemRecord) []Problem {
	out := make([]Problem, 0, len(records))
	for _, rec := range records {
		p := Problem{
			ID:          rec.ID,
			Title:       rec.Title,
			Description: rec.Description,
			Difficulty:  Difficulty(rec.Difficulty),
			StarterCode: rec.StarterCode,
			TestCases:   make([]TestCase, 0, len(rec.TestCases)),
			Examples:    make([]Example, 0, len(rec.Examples)),
		}
		for _, tc := range rec.TestCases {
			p.TestCases = append(p.TestCases, TestCase{
				Input:    json.RawMessage(tc.Input),
				Expected: json.RawMessage(tc.Expected),
			})
		}
		for _, ex := range rec.Examples {
			p.Examples = append(p.Examples, Example{
				Input:       json.RawMessage(ex.Input),
				Output:      json.RawMessage(ex.Output),
				Explanation: ex.Explanation,
			})
		}
		out = append(out, p)
	}
	return out
}
