package db

import "testing"

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "url wins",
			cfg:  Config{URL: "postgres://u:p@db:5432/app", Host: "ignored"},
			want: "postgres://u:p@db:5432/app",
		},
		{
			name: "with password",
			cfg:  Config{Host: "localhost", Port: 5432, User: "app", Password: "pw", Database: "pushwatch", SSLMode: "disable"},
			want: "host=localhost port=5432 user=app password=pw dbname=pushwatch sslmode=disable",
		},
		{
			name: "without password",
			cfg:  Config{Host: "localhost", Port: 5432, User: "app", Database: "pushwatch", SSLMode: "require"},
			want: "host=localhost port=5432 user=app dbname=pushwatch sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
