package database

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"jobMatch/internal/config"
)

func TestMigrate_EnforcesOneResultPerUserAndOffer(t *testing.T) {
	db, err := Open(sqlite.Open("file::memory:"), config.DatabaseConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first := MatchResult{UserID: 1, JobOfferID: 10, MatchScore: 80}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("insert first result: %v", err)
	}
	if err := db.Create(&MatchResult{UserID: 1, JobOfferID: 10, MatchScore: 55}).Error; err == nil {
		t.Fatal("expected duplicate (user, offer) insert to fail")
	}
	if err := db.Create(&MatchResult{UserID: 2, JobOfferID: 10, MatchScore: 55}).Error; err != nil {
		t.Fatalf("other user must be able to match the same offer: %v", err)
	}
}

func TestUserHasCV(t *testing.T) {
	empty := ""
	name := "cvs/1/a.pdf"
	tests := []struct {
		name string
		user User
		want bool
	}{
		{name: "nothing", user: User{}, want: false},
		{name: "inline data", user: User{CVData: []byte("cv")}, want: true},
		{name: "empty filename", user: User{CVFilename: &empty}, want: false},
		{name: "stored file", user: User{CVFilename: &name}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.HasCV(); got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}
