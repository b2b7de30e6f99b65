package notify

import (
	"testing"

	"github.com/spf13/afero"
)

// memConfigFs returns an in-memory filesystem seeded with a minimal
// config.json carrying just enough SMTP configuration for the notifier's
// send path to proceed to mailbox parsing.
func memConfigFs(t *testing.T) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()

	doc := `{
		"web_port": 8080,
		"ping_interval": 0,
		"smtp": {
			"server": "smtp.example.com",
			"from": "netwatch@example.com",
			"user": "netwatch",
			"password": "secret",
			"recievers": ["ops@example.com"]
		},
		"users": []
	}`

	if err := afero.WriteFile(fsys, "config.json", []byte(doc), 0o644); err != nil {
		t.Fatalf("failure seeding config.json: %v", err)
	}

	return fsys
}
