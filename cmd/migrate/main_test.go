package main

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    command
		wantErr bool
	}{
		{name: "up", args: []string{"up"}, want: command{name: "up"}},
		{name: "version", args: []string{"version"}, want: command{name: "version"}},
		{name: "down defaults to one step", args: []string{"down"}, want: command{name: "down", arg: 1}},
		{name: "down with steps", args: []string{"down", "3"}, want: command{name: "down", arg: 3}},
		{name: "goto", args: []string{"goto", "1"}, want: command{name: "goto", arg: 1}},
		{name: "force zero", args: []string{"force", "0"}, want: command{name: "force", arg: 0}},
		{name: "no args", args: nil, wantErr: true},
		{name: "unknown", args: []string{"sideways"}, wantErr: true},
		{name: "down zero", args: []string{"down", "0"}, wantErr: true},
		{name: "down not a number", args: []string{"down", "x"}, wantErr: true},
		{name: "goto without version", args: []string{"goto"}, wantErr: true},
		{name: "force negative", args: []string{"force", "-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
