package main

import "testing"

func TestRepositoryName(t *testing.T) {
	tests := []struct {
		name    string
		repoDir string
		want    string
	}{
		{name: "absolute path", repoDir: "/tmp/acme-api", want: "acme-api"},
		{name: "trailing slash", repoDir: "/tmp/acme-api/", want: "acme-api"},
		{name: "relative path", repoDir: ".", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repositoryName(tt.repoDir)
			if tt.want == "" {
				// Resolves against the working directory, so just require
				// something usable.
				if got == "" {
					t.Fatal("expected a non-empty repository name")
				}
				return
			}
			if got != tt.want {
				t.Errorf("repositoryName(%q) = %q, want %q", tt.repoDir, got, tt.want)
			}
		})
	}
}
