package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/chemvisualizer/go-dashclient/components/dashclient"
)

type cli struct {
	Config string `type:"path" default:"." help:"Directory containing config.yml."`

	Login    loginCmd    `cmd:"" help:"Sign in and persist the session token."`
	Register registerCmd `cmd:"" help:"Create an account."`
	Logout   logoutCmd   `cmd:"" help:"Discard the persisted session."`
	History  historyCmd  `cmd:"" help:"List recent uploads."`
	View     viewCmd     `cmd:"" help:"Show statistics and rows for an upload."`
	Upload   uploadCmd   `cmd:"" help:"Submit a CSV and load its dashboard."`
	Report   reportCmd   `cmd:"" help:"Download the server-rendered report for an upload."`
	Export   exportCmd   `cmd:"" help:"Write an upload to a local XLSX workbook."`
	Users    usersCmd    `cmd:"" help:"List registered users (staff only)."`
}

// app wires the client stack once per invocation.
type app struct {
	cfg      dashclient.Config
	log      *zap.Logger
	session  *dashclient.Session
	client   *dashclient.Client
	vm       *dashclient.ViewModel
	uploads  *dashclient.UploadController
	reports  *dashclient.ReportExporter
	auth     *dashclient.AuthController
	workbook *dashclient.WorkbookExporter
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("chemctl"),
		kong.Description("Terminal client for the chemical-equipment CSV analytics service."),
		kong.UsageOnError(),
	)
	a, err := newApp(c.Config)
	ctx.FatalIfErrorf(err)
	defer a.log.Sync()
	ctx.FatalIfErrorf(ctx.Run(a))
}

func newApp(configDir string) (*app, error) {
	cfg, err := dashclient.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}
	log := dashclient.NewLogger(cfg.LogLevel)

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("chemctl: resolve home dir: %w", err)
		}
		tokenPath = filepath.Join(home, ".chemviz", "session.yml")
	}
	session := dashclient.NewSession(dashclient.NewFileTokenKeeper(tokenPath))
	if err := session.Restore(); err != nil {
		return nil, err
	}

	client := dashclient.NewClient(cfg.BaseURL, session,
		dashclient.WithLogger(log),
		dashclient.WithAuthErrorHook(func() {
			log.Warn("session rejected by server, logging out")
			_ = session.Logout()
		}),
	)
	telemetry := dashclient.NewZapTelemetry(log)
	vm := dashclient.NewViewModel(dashclient.ViewModelOptions{
		Gateway:   client,
		Telemetry: telemetry,
		Logger:    log,
	})
	session.OnLogout(vm.Reset)
	saver := dashclient.DirFileSaver{Dir: cfg.DownloadDir}

	return &app{
		cfg:     cfg,
		log:     log,
		session: session,
		client:  client,
		vm:      vm,
		uploads: dashclient.NewUploadController(dashclient.UploadControllerOptions{
			Gateway:   client,
			ViewModel: vm,
			Telemetry: telemetry,
			Logger:    log,
		}),
		reports: dashclient.NewReportExporter(dashclient.ReportExporterOptions{
			Gateway:   client,
			Saver:     saver,
			Telemetry: telemetry,
			Logger:    log,
		}),
		auth: dashclient.NewAuthController(dashclient.AuthControllerOptions{
			Gateway:   client,
			Session:   session,
			Telemetry: telemetry,
			Logger:    log,
		}),
		workbook: dashclient.NewWorkbookExporter(saver),
	}, nil
}

func (a *app) requireSession() error {
	if !a.session.Authenticated() {
		return fmt.Errorf("chemctl: not logged in (run `chemctl login` first)")
	}
	return nil
}

type loginCmd struct {
	Username string `required:"" help:"Account username."`
	Password string `required:"" help:"Account password."`
}

func (cmd *loginCmd) Run(a *app) error {
	if err := a.auth.Login(context.Background(), cmd.Username, cmd.Password); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", cmd.Username)
	return nil
}

type registerCmd struct {
	Username string `required:"" help:"Desired username."`
	Email    string `required:"" help:"Account email."`
	Password string `required:"" help:"Account password."`
}

func (cmd *registerCmd) Run(a *app) error {
	if err := a.auth.Register(context.Background(), cmd.Username, cmd.Email, cmd.Password); err != nil {
		return err
	}
	fmt.Println(a.auth.RegisterState().Message)
	return nil
}

type logoutCmd struct{}

func (cmd *logoutCmd) Run(a *app) error {
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

type historyCmd struct{}

func (cmd *historyCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := a.vm.RefreshHistory(ctx); err != nil {
		return err
	}
	state := a.vm.State()
	if len(state.History) == 0 {
		fmt.Println("No uploads yet.")
		return nil
	}
	for _, item := range state.History {
		fmt.Printf("#%-4d %-24s %-32s %5d records  by %s\n",
			item.ID, item.UploadedAt.Format("2006-01-02 15:04"),
			filepath.Base(item.Filename), item.Records, item.UploadedBy)
	}
	return nil
}

type viewCmd struct {
	ID        int    `arg:"" help:"Upload id from the history list."`
	ChartsDir string `help:"Write rendered chart HTML into this directory."`
}

func (cmd *viewCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := a.vm.Mount(ctx); err != nil {
		return err
	}
	if err := a.vm.SelectUpload(ctx, cmd.ID); err != nil {
		return err
	}
	state := a.vm.State()
	stats := state.Stats
	fmt.Printf("Upload #%d: %d records\n", cmd.ID, stats.TotalCount)
	fmt.Printf("  avg flowrate    %.2f\n", stats.Averages.Flowrate)
	fmt.Printf("  avg pressure    %.2f\n", stats.Averages.Pressure)
	fmt.Printf("  avg temperature %.2f\n", stats.Averages.Temperature)
	for _, bucket := range stats.TypeDistribution {
		fmt.Printf("  %-20s %d\n", bucket.EquipmentType, bucket.Count)
	}
	for _, rec := range state.Selected.Records {
		fmt.Printf("%-24s %-16s %8.2f %8.2f %8.2f\n",
			rec.EquipmentName, rec.EquipmentType, rec.Flowrate, rec.Pressure, rec.Temperature)
	}

	if cmd.ChartsDir == "" {
		return nil
	}
	renderer := dashclient.NewChartRenderer(dashclient.WithTheme(a.cfg.Theme))
	html, err := renderer.Render(a.vm.DeriveCharts())
	if err != nil {
		return err
	}
	saver := dashclient.DirFileSaver{Dir: cmd.ChartsDir}
	if _, err := saver.Save(fmt.Sprintf("upload_%d_parameters.html", cmd.ID), []byte(html.Parameters)); err != nil {
		return err
	}
	if _, err := saver.Save(fmt.Sprintf("upload_%d_distribution.html", cmd.ID), []byte(html.Distribution)); err != nil {
		return err
	}
	fmt.Printf("Charts written to %s\n", cmd.ChartsDir)
	return nil
}

type uploadCmd struct {
	File string `arg:"" type:"existingfile" help:"CSV file to submit."`
}

func (cmd *uploadCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := a.vm.Mount(ctx); err != nil {
		return err
	}
	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.uploads.Submit(ctx, filepath.Base(cmd.File), f); err != nil {
		return err
	}
	state := a.vm.State()
	fmt.Printf("Uploaded %s as #%d (%d records)\n", filepath.Base(cmd.File), state.Selected.ID, state.Stats.TotalCount)
	return nil
}

type reportCmd struct {
	ID int `arg:"" help:"Upload id to export."`
}

func (cmd *reportCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	path, err := a.reports.ExportReport(context.Background(), cmd.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Report saved to %s\n", path)
	return nil
}

type exportCmd struct {
	ID int `arg:"" help:"Upload id to export."`
}

func (cmd *exportCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := a.vm.Mount(ctx); err != nil {
		return err
	}
	if err := a.vm.SelectUpload(ctx, cmd.ID); err != nil {
		return err
	}
	state := a.vm.State()
	path, err := a.workbook.Export(state.Selected, state.Stats)
	if err != nil {
		return err
	}
	fmt.Printf("Workbook saved to %s\n", path)
	return nil
}

type usersCmd struct{}

func (cmd *usersCmd) Run(a *app) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := a.vm.SetTab(ctx, dashclient.TabUsers); err != nil {
		return err
	}
	for _, user := range a.vm.State().Users {
		role := "User"
		if user.IsStaff {
			role = "Admin"
		}
		email := user.Email
		if email == "" {
			email = "N/A"
		}
		fmt.Printf("#%-4d %-20s %-32s %s\n", user.ID, user.Username, email, role)
	}
	return nil
}
