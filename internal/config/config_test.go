package config

import "testing"

func TestLoad_MissingDatabaseURLFailsValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject an unset DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/hisync")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %s, want 8000", cfg.Port)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool sizes = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
	if cfg.AllExportedWorkingStateID != "" {
		t.Errorf("AllExportedWorkingStateID = %q, want empty", cfg.AllExportedWorkingStateID)
	}
}

func TestLoad_CascadeStateIDs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/hisync")
	t.Setenv("ALL_EXPORTED_WORKING_STATE_ID", "7")
	t.Setenv("ALL_ACTUAL_EXPORTED_WORKING_STATE_ID", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AllExportedWorkingStateID != "7" {
		t.Errorf("AllExportedWorkingStateID = %q, want 7", cfg.AllExportedWorkingStateID)
	}
	if cfg.AllActualExportedWorkingStateID != "9" {
		t.Errorf("AllActualExportedWorkingStateID = %q, want 9", cfg.AllActualExportedWorkingStateID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{DatabaseURL: "postgres://x", DBMaxConns: 10, DBMinConns: 2}, false},
		{"missing url", Config{DBMaxConns: 10, DBMinConns: 2}, true},
		{"max below min", Config{DatabaseURL: "postgres://x", DBMaxConns: 1, DBMinConns: 5}, true},
		{"padded state id", Config{DatabaseURL: "postgres://x", DBMaxConns: 10, DBMinConns: 2, AllExportedWorkingStateID: " 7"}, true},
		{"padded actual state id", Config{DatabaseURL: "postgres://x", DBMaxConns: 10, DBMinConns: 2, AllActualExportedWorkingStateID: "9 "}, true},
	}

	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
