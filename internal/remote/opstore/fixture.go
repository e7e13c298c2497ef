package opstore

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/xolex/xolex/internal/models"
)

//go:embed fixture.toml
var defaultFixture []byte

// Fixture is seed data for an empty sandbox database.
type Fixture struct {
	Users      []FixtureUser      `toml:"users"`
	Operations []FixtureOperation `toml:"operations"`
}

// FixtureUser is an account to create.
type FixtureUser struct {
	Email    string `toml:"email"`
	Name     string `toml:"name"`
	Password string `toml:"password"`
}

// FixtureOperation is an operation to create. Owner is the email of one of
// the fixture users.
type FixtureOperation struct {
	Type        string `toml:"type"`
	Status      string `toml:"status"`
	Name        string `toml:"name"`
	Quantity    int64  `toml:"quantity"`
	Site        string `toml:"site"`
	Destination string `toml:"destination"`
	BatchNumber string `toml:"batch_number"`
	Date        string `toml:"date"`
	Owner       string `toml:"owner"`
}

// DefaultFixture returns the built-in seed data.
func DefaultFixture() (*Fixture, error) {
	return ParseFixture(defaultFixture)
}

// LoadFixture reads seed data from a TOML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes seed data.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// Seed loads f into s unless s already has users. It reports whether
// anything was written.
func (s *Store) Seed(ctx context.Context, f *Fixture) (bool, error) {
	var users int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return false, nil
	}

	owners := make(map[string]string, len(f.Users))
	for _, fu := range f.Users {
		u, err := s.CreateUser(ctx, fu.Email, fu.Name, fu.Password)
		if err != nil {
			return false, fmt.Errorf("seed user %s: %w", fu.Email, err)
		}
		owners[u.Email] = u.ID
	}

	base := time.Now().UTC()
	for i, fo := range f.Operations {
		op := models.Operation{
			Type:        models.OperationType(fo.Type),
			Status:      fo.Status,
			Name:        fo.Name,
			Site:        fo.Site,
			Destination: fo.Destination,
			// Later entries are newer so the file reads oldest first.
			CreatedAt: models.Timestamp{Time: base.Add(time.Duration(i-len(f.Operations)) * time.Minute)},
		}
		if fo.Quantity != 0 {
			op.Quantity = models.FlexInt(fo.Quantity)
		}
		if fo.BatchNumber != "" {
			op.Batch = &models.Batch{BatchNumber: models.FlexString(fo.BatchNumber)}
		}
		if fo.Date != "" {
			op.Date = models.Timestamp{Time: parseTimestamp(fo.Date)}
		}
		if fo.Owner != "" {
			id, ok := owners[fo.Owner]
			if !ok {
				return false, fmt.Errorf("seed operation %s: unknown owner %q", fo.Name, fo.Owner)
			}
			op.UserID = models.FlexString(id)
		}
		if _, err := s.InsertOperation(ctx, &op); err != nil {
			return false, fmt.Errorf("seed operation %s: %w", fo.Name, err)
		}
	}
	return true, nil
}
