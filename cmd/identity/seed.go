package identity

import (
	"context"
	"fmt"
	"strings"
)

// Seed is one user to pre-register at startup.
type Seed struct {
	Email       string
	DisplayName string
}

// DemoSeeds are the accounts registered by the demo flow.
var DemoSeeds = []Seed{
	{Email: "alice@example.com", DisplayName: "Alice Tester"},
	{Email: "bob@example.com", DisplayName: "Bob Developer"},
	{Email: "user@test.com", DisplayName: "Test User"},
}

// ParseSeeds parses "email:Display Name,email2:Name2". The display name is optional.
func ParseSeeds(s string) ([]Seed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []Seed
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		email, name, _ := strings.Cut(part, ":")
		email = strings.TrimSpace(email)
		if !ValidEmail(email) {
			return nil, fmt.Errorf("identity: invalid seed email %q", email)
		}
		out = append(out, Seed{Email: email, DisplayName: strings.TrimSpace(name)})
	}
	return out, nil
}

// SeedDirectory registers every seed, returning the first failure.
func SeedDirectory(ctx context.Context, d Directory, seeds []Seed) error {
	for _, s := range seeds {
		if _, err := d.RegisterOrGet(ctx, s.Email, s.DisplayName); err != nil {
			return err
		}
	}
	return nil
}
