package membership

import "testing"

func TestParseManifestName(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "simple manifest",
			raw:  "[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
			want: "serde",
		},
		{
			name: "manifest with extra sections",
			raw:  "[package]\nname = \"qux\"\n\n[dependencies]\nfoo = \"1.0\"\n",
			want: "qux",
		},
		{
			name:    "malformed toml",
			raw:     "[package\nname = broken",
			wantErr: true,
		},
		{
			name: "missing package table",
			raw:  "[dependencies]\nfoo = \"1.0\"\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseManifestName([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseManifestName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("parseManifestName() = %q, want %q", got, tt.want)
			}
		})
	}
}
