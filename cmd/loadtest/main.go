// Команда loadtest нагружает HTTP API crowngate правдоподобными заказами клиник.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateUpdate       loadMode = "create-update"
	modeCreateUpdateDelete loadMode = "create-update-delete"
)

var (
	workTypes = []string{"Zirconia Crown", "E-Max Veneer", "PFM Bridge", "Implant Abutment", "Night Guard"}
	shades    = []string{"A1", "A2", "A3", "B1", "B2", "C1", "D2", "BL2"}
	labTechs  = []string{"Marcus Vane", "Anya Petrova", "Leo Schmidt"}
	labNotes  = []string{"", "Match adjacent central", "Rush: patient travelling", "Light occlusion", "Scan attached"}
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	deleteRate  int
	urgentRate  int
	doctorTag   string
	seed        uint64
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	cfg := config{}
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var mode string
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "crowngate HTTP base URL")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration acts as an upper bound when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "create | create-update | create-update-delete")
	fs.IntVar(&cfg.deleteRate, "delete-rate", 0, "percent of create-update scenarios that also delete (0..100)")
	fs.IntVar(&cfg.urgentRate, "urgent-rate", 20, "percent of Urgent orders (0..100)")
	fs.StringVar(&cfg.doctorTag, "doctor-tag", "Load", "marker inserted into generated doctor names")
	fs.Uint64Var(&cfg.seed, "seed", 0, "gofakeit seed (0 = random)")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return cfg, err
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs []error
	if !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		errs = append(errs, errors.New("url must start with http:// or https://"))
	}
	if c.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if (c.duration == 0 || c.totalSet) && c.total <= 0 {
		errs = append(errs, errors.New("total must be > 0"))
	}
	if c.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if c.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if c.deleteRate < 0 || c.deleteRate > 100 {
		errs = append(errs, errors.New("delete-rate must be between 0 and 100"))
	}
	if c.urgentRate < 0 || c.urgentRate > 100 {
		errs = append(errs, errors.New("urgent-rate must be between 0 and 100"))
	}
	if strings.TrimSpace(c.doctorTag) == "" {
		errs = append(errs, errors.New("doctor-tag is required"))
	}
	return errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch m := loadMode(strings.TrimSpace(value)); m {
	case modeCreate, modeCreateUpdate, modeCreateUpdateDelete:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
	if cfg.seed != 0 {
		gofakeit.GlobalFaker = gofakeit.New(cfg.seed)
	}

	result := run(context.Background(), newAPIClient(cfg.baseURL, cfg.concurrency), cfg)
	printReport(os.Stdout, result, cfg)

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Scenarios.Failed > 0 {
		os.Exit(1)
	}
}

// run гоняет сценарии воркерами и возвращает сводку.
func run(ctx context.Context, api orderAPI, cfg config) report {
	runID := strconv.FormatInt(time.Now().UnixNano(), 36)
	rec := newRecorder()
	startedAt := time.Now()

	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	jobs := scenarioIndexes(ctx, cfg)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				_ = runScenario(api, cfg, i, runID, rec)
			}
		}()
	}
	wg.Wait()

	return rec.build(startedAt, time.Since(startedAt))
}

// scenarioIndexes выдаёт номера сценариев, пока не исчерпан total или не истёк ctx.
func scenarioIndexes(ctx context.Context, cfg config) <-chan int {
	out := make(chan int)
	limited := cfg.duration <= 0 || cfg.totalSet
	go func() {
		defer close(out)
		for i := 0; !limited || i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case out <- i:
			}
		}
	}()
	return out
}

// fakeOrder собирает правдоподобный заказ клиники.
func fakeOrder(cfg config, index int) domain.NewOrder {
	priority := domain.PriorityNormal
	if index%100 < cfg.urgentRate {
		priority = domain.PriorityUrgent
	}
	now := time.Now()
	due := gofakeit.DateRange(now.AddDate(0, 0, 3), now.AddDate(0, 0, 30))
	quadrant, tooth := gofakeit.Number(1, 4), gofakeit.Number(1, 8)
	return domain.NewOrder{
		PatientName: gofakeit.Name(),
		DoctorName:  fmt.Sprintf("Dr. %s %s", cfg.doctorTag, gofakeit.LastName()),
		ClinicName:  gofakeit.Company(),
		ToothNumber: strconv.Itoa(quadrant*10 + tooth),
		Shade:       gofakeit.RandomString(shades),
		TypeOfWork:  gofakeit.RandomString(workTypes),
		DueDate:     due.Format(domain.DateLayout),
		Notes:       gofakeit.RandomString(labNotes),
		Priority:    priority,
	}
}

// fakePatch переводит заказ на этап Received и назначает техника.
func fakePatch() domain.OrderPatch {
	status := domain.OrderStatusReceived
	tech := gofakeit.RandomString(labTechs)
	return domain.OrderPatch{Status: &status, AssignedTech: &tech}
}

func shouldDelete(cfg config, index int) bool {
	switch cfg.mode {
	case modeCreateUpdateDelete:
		return true
	case modeCreateUpdate:
		return index%100 < cfg.deleteRate
	default:
		return false
	}
}

func runScenario(api orderAPI, cfg config, index int, runID string, rec *recorder) (err error) {
	began := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil && outcome == "ok" {
			outcome = "failed"
		}
		rec.observe(scenarioCall, time.Since(began), outcome, err != nil)
	}()

	var order domain.Order
	err = timed(rec, "CreateOrder", cfg.timeout, func(ctx context.Context) (apiResult, error) {
		var res apiResult
		var callErr error
		order, res, callErr = api.CreateOrder(ctx, fakeOrder(cfg, index), fmt.Sprintf("lt-%s-%d", runID, index))
		rec.syncState(res.SyncState)
		return res, callErr
	})
	if err != nil {
		return err
	}
	if order.ID == "" {
		outcome = "empty_id"
		return errors.New("create response returned empty order id")
	}
	if cfg.mode == modeCreate {
		return nil
	}

	err = timed(rec, "UpdateOrder", cfg.timeout, func(ctx context.Context) (apiResult, error) {
		return api.UpdateOrder(ctx, order.ID, fakePatch())
	})
	if err != nil || !shouldDelete(cfg, index) {
		return err
	}
	return timed(rec, "DeleteOrder", cfg.timeout, func(ctx context.Context) (apiResult, error) {
		return api.DeleteOrder(ctx, order.ID)
	})
}

// timed выполняет вызов с таймаутом и записывает его длительность и код.
func timed(rec *recorder, call string, timeout time.Duration, fn func(ctx context.Context) (apiResult, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	began := time.Now()
	res, err := fn(ctx)
	rec.observe(call, time.Since(began), res.code(), err != nil)
	return err
}
