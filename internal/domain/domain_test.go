package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validDatabaseProfile() DatabaseProfile {
	return DatabaseProfile{
		ProfileID: uuid.New(),
		Name:      "Back Office",
		Server:    "sql01.store.local",
		Port:      1433,
		Database:  "POS",
		Username:  "pos_app",
		Password:  "hunter2",
	}
}

func TestDatabaseProfileValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validDatabaseProfile().Validate())

	integrated := validDatabaseProfile()
	integrated.IntegratedSecurity = true
	integrated.Username = ""
	require.NoError(t, integrated.Validate())

	tests := []struct {
		name   string
		mutate func(p *DatabaseProfile)
		want   string
	}{
		{name: "missing name", mutate: func(p *DatabaseProfile) { p.Name = "" }, want: "name is required"},
		{name: "bad name", mutate: func(p *DatabaseProfile) { p.Name = "-x" }, want: "name must be"},
		{name: "missing server", mutate: func(p *DatabaseProfile) { p.Server = "" }, want: "server is required"},
		{name: "port range", mutate: func(p *DatabaseProfile) { p.Port = 70000 }, want: "port must be at most 65535"},
		{name: "sql auth without user", mutate: func(p *DatabaseProfile) { p.Username = "" }, want: "username is required"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validDatabaseProfile()
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDatabaseProfileCheckDeletable(t *testing.T) {
	t.Parallel()

	p := validDatabaseProfile()
	require.NoError(t, p.CheckDeletable())
	p.IsDefault = true
	require.ErrorIs(t, p.CheckDeletable(), ErrDefaultProfile)
}

func TestConnectionStringHidesPassword(t *testing.T) {
	t.Parallel()

	p := validDatabaseProfile()
	masked := p.ConnectionString(false)
	require.Equal(t, "Server=sql01.store.local,1433;Database=POS;User Id=pos_app;Password=********;", masked)
	require.Contains(t, p.ConnectionString(true), "Password=hunter2;")

	p.IntegratedSecurity = true
	p.Port = 0
	p.TimeoutSeconds = 15
	require.Equal(t, "Server=sql01.store.local;Database=POS;Integrated Security=True;Connect Timeout=15;", p.ConnectionString(true))
}

func TestPrinterProfileValidate(t *testing.T) {
	t.Parallel()

	usb := PrinterProfile{ProfileID: uuid.New(), Name: "Front", Kind: PrinterReceipt, Connection: ConnectionUSB, PaperWidthMM: 80}
	require.NoError(t, usb.Validate())
	require.NoError(t, usb.CheckDeletable())

	network := usb
	network.Connection = ConnectionNetwork
	err := network.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "address is required")

	network.Address = "10.0.0.40"
	network.Port = 9100
	require.NoError(t, network.Validate())

	bad := usb
	bad.Kind = "laser"
	bad.PaperWidthMM = 72
	err = bad.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "kind must be one of")
	require.Contains(t, err.Error(), "paperwidthmm must be one of")
}

func TestSystemSetting(t *testing.T) {
	t.Parallel()

	s := NewSystemSetting("receipt.footer", "Thanks!")
	require.NoError(t, s.Validate())
	require.Equal(t, SettingID("receipt.footer"), s.ID())
	require.Equal(t, s.ID(), NewSystemSetting("receipt.footer", "other").ID())
	require.NoError(t, s.CheckDeletable())

	s.ReadOnly = true
	require.ErrorIs(t, s.CheckDeletable(), ErrReadOnlySetting)

	bad := NewSystemSetting("Receipt Footer", "x")
	require.Error(t, bad.Validate())

	mismatched := NewSystemSetting("a.b", "x")
	mismatched.Key = "a.c"
	require.Error(t, mismatched.Validate())
}
