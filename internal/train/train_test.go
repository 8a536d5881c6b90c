package train

import (
	"errors"
	"testing"

	pkgerrors "train-router/pkg/errors"
)

func TestProjectRef_ProjectName(t *testing.T) {
	cases := []struct {
		ref  ProjectRef
		want string
	}{
		{Incoming, "pht_incoming"},
		{Outgoing, "pht_outgoing"},
		{Interop, "pht_interop"},
		{StationRef("abc"), "station_abc"},
	}
	for _, c := range cases {
		if got := c.ref.ProjectName(); got != c.want {
			t.Errorf("ProjectName(%q): got %q, want %q", c.ref, got, c.want)
		}
	}
}

func TestRefFromProjectName(t *testing.T) {
	cases := []struct {
		name string
		want ProjectRef
	}{
		{"pht_incoming", Incoming},
		{"pht_outgoing", Outgoing},
		{"station_abc", ProjectRef("abc")},
	}
	for _, c := range cases {
		if got := RefFromProjectName(c.name); got != c.want {
			t.Errorf("RefFromProjectName(%q): got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestRoute_Type(t *testing.T) {
	r := Route{Suffix: "t", Stations: []StationID{"a"}}
	if r.Type() != RouteLinear {
		t.Errorf("Type: got %q, want linear", r.Type())
	}
	r.Periodic = true
	if r.Type() != RoutePeriodic {
		t.Errorf("Type: got %q, want periodic", r.Type())
	}
}

func TestRoute_Validate(t *testing.T) {
	cases := []struct {
		name  string
		route Route
		ok    bool
	}{
		{"linear", Route{Suffix: "t", Stations: []StationID{"a"}}, true},
		{"periodic", Route{Suffix: "t", Stations: []StationID{"a"}, Periodic: true, Epochs: 2}, true},
		{"no suffix", Route{Stations: []StationID{"a"}}, false},
		{"no stations", Route{Suffix: "t"}, false},
		{"blank station", Route{Suffix: "t", Stations: []StationID{"a", ""}}, false},
		{"periodic without epochs", Route{Suffix: "t", Stations: []StationID{"a"}, Periodic: true}, false},
		{"linear with epochs", Route{Suffix: "t", Stations: []StationID{"a"}, Epochs: 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.route.Validate()
			if c.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !c.ok && !errors.Is(err, pkgerrors.ErrInvalidRoute) {
				t.Errorf("Validate: got %v, want ErrInvalidRoute", err)
			}
		})
	}
}
