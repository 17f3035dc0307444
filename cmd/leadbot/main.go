package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/api"
	"github.com/Ouederniamin/lead-fb-sub001/internal/config"
	"github.com/Ouederniamin/lead-fb-sub001/internal/cycle"
	"github.com/Ouederniamin/lead-fb-sub001/internal/debounce"
	"github.com/Ouederniamin/lead-fb-sub001/internal/fbsource"
	"github.com/Ouederniamin/lead-fb-sub001/internal/lease"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/pacing"
	"github.com/Ouederniamin/lead-fb-sub001/internal/reply"
	"github.com/Ouederniamin/lead-fb-sub001/internal/replygen"
	"github.com/Ouederniamin/lead-fb-sub001/internal/scheduler"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
	"github.com/Ouederniamin/lead-fb-sub001/internal/syncer"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

	// Global flags
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to config file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `leadbot - Facebook outreach automation

Usage:
  leadbot [--config config.yaml] <command> [options]

Commands:
  login --account A               Ensure logged in session (with cookie reuse)
  cycle --account A [--agent T --idle-timeout N]
                                  Run the sync/debounce/reply cycle for an account
  schedule-show --agent T         Print the stored schedule
  schedule-apply --agent T ...    Update template budgets (and optionally push to hours)
  schedule-regen --agent T        Regenerate scheduled execution times
  add-contact --account A --name N --ref R
                                  Register a conversation to track
  serve                           Start the HTTP schedule/cycle API

Examples:
  leadbot --config config.yaml cycle --account acc-1 --idle-timeout 300
  leadbot schedule-apply --agent MESSAGE_AGENT --peak-dms 4 --normal-dms 2 --push
`)
	}

	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level)
	log.Info("leadbot starting", "version", "0.2.0")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Error("db migration failed", "err", err)
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	log.Info("executing command", "command", cmd)
	switch cmd {
	case "login":
		err = runLogin(ctx, cfg)
	case "cycle":
		err = runCycle(ctx, cfg, st)
	case "schedule-show":
		err = runScheduleShow(ctx, st)
	case "schedule-apply":
		err = runScheduleApply(ctx, cfg, st)
	case "schedule-regen":
		err = runScheduleRegen(ctx, cfg, st)
	case "add-contact":
		err = runAddContact(ctx, st)
	case "serve":
		err = runServe(ctx, cfg, st)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Error("command failed", "cmd", cmd, "err", err)
		fmt.Fprintf(os.Stderr, "\ncommand failed: %v\n", err)
		os.Exit(1)
	}
	log.Info("command completed successfully", "cmd", cmd)
}

func newLeaseRegistry(cfg *config.Config) lease.Registry {
	if cfg.Redis.Addr == "" {
		return lease.NewMemory()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return lease.NewRedis(rdb)
}

// pipelineRunner builds the full browser-backed pipeline per invocation. It
// also backs the HTTP cycle trigger.
type pipelineRunner struct {
	cfg    *config.Config
	st     *store.Store
	leases lease.Registry
}

func (r *pipelineRunner) RunCycle(ctx context.Context, accountID string, opts cycle.Options) (*cycle.Result, error) {
	cfg := r.cfg
	log := logging.New(cfg.Logging.Level)

	br, err := fbsource.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer br.Close()
	sess := fbsource.NewSession(br, cfg, accountID)
	if err := sess.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	src := fbsource.NewSource(br, cfg)
	defer src.Close()
	sink := fbsource.NewSink(src, cfg)

	clk := pacing.RealClock()
	gen := replygen.NewClient(cfg.Generator.BaseURL, time.Duration(cfg.Generator.TimeoutMs)*time.Millisecond)
	engine := syncer.New(r.st, log)
	collector := debounce.New(src, clk, log, cfg.CheckInterval(), cfg.SilenceWindow(), cfg.MaxWait())
	orch := reply.New(r.st, sink, gen, clk, log, cfg.Pacing.MinDelayMs, cfg.Pacing.MaxDelayMs)
	ctl := cycle.New(r.st, src, engine, collector, orch, r.leases, clk, log,
		cfg.PollInterval(), cfg.LeaseTTL())
	return ctl.RunCycle(ctx, accountID, opts)
}

func runLogin(ctx context.Context, cfg *config.Config) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	var account string
	fs.StringVar(&account, "account", "default", "Account id")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}
	br, err := fbsource.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer br.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	return fbsource.NewSession(br, cfg, account).EnsureLoggedIn(ctx)
}

func runCycle(ctx context.Context, cfg *config.Config, st *store.Store) error {
	fs := flag.NewFlagSet("cycle", flag.ContinueOnError)
	var account, agent string
	var idleTimeout int
	fs.StringVar(&account, "account", "default", "Account id")
	fs.StringVar(&agent, "agent", string(models.AgentMessageAgent), "Agent type gating this run")
	fs.IntVar(&idleTimeout, "idle-timeout", 0, "Idle timeout seconds (0 = single pass)")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}

	log := logging.New(cfg.Logging.Level)
	sched := scheduler.NewService(st, log)
	if _, err := st.SeedSchedule(ctx, models.AgentType(agent)); err != nil {
		return err
	}
	dec, err := sched.ShouldRun(ctx, models.AgentType(agent), time.Now())
	if err != nil {
		return err
	}
	if !dec.ShouldRun {
		log.Info("schedule gate closed, not running", "agent", agent, "reason", dec.Reason)
		return nil
	}
	log.Info("schedule gate open", "agent", agent, "is_peak", dec.IsPeak, "budget_total", dec.Budget.Total())

	runner := &pipelineRunner{cfg: cfg, st: st, leases: newLeaseRegistry(cfg)}
	res, err := runner.RunCycle(ctx, account, cycle.Options{
		IdleTimeout: time.Duration(idleTimeout) * time.Second,
	})
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runScheduleShow(ctx context.Context, st *store.Store) error {
	fs := flag.NewFlagSet("schedule-show", flag.ContinueOnError)
	var agent string
	fs.StringVar(&agent, "agent", string(models.AgentMessageAgent), "Agent type")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}
	sc, err := st.SeedSchedule(ctx, models.AgentType(agent))
	if err != nil {
		return err
	}
	totals := scheduler.DailyTotals(sc)
	fmt.Printf("agent=%s enabled=%v tz=%s daily_totals=%+v\n", sc.AgentType, sc.Enabled, sc.Timezone, totals)
	for _, h := range sc.Slots {
		if !h.Enabled {
			continue
		}
		fmt.Printf("  hour %02d peak=%v overridden=%v budget=%+v times=%v\n",
			h.Hour, h.IsPeak, h.Overridden, h.EffectiveBudget(sc), h.ScheduledTimes)
	}
	return nil
}

func runScheduleApply(ctx context.Context, cfg *config.Config, st *store.Store) error {
	fs := flag.NewFlagSet("schedule-apply", flag.ContinueOnError)
	var agent string
	var peak, normal models.PerKindCounts
	var push bool
	fs.StringVar(&agent, "agent", string(models.AgentMessageAgent), "Agent type")
	fs.IntVar(&peak.Scrapes, "peak-scrapes", 0, "Peak scrapes per hour")
	fs.IntVar(&peak.Comments, "peak-comments", 0, "Peak comments per hour")
	fs.IntVar(&peak.DMs, "peak-dms", 0, "Peak dms per hour")
	fs.IntVar(&peak.FriendRequests, "peak-friend-requests", 0, "Peak friend requests per hour")
	fs.IntVar(&normal.Scrapes, "normal-scrapes", 0, "Normal scrapes per hour")
	fs.IntVar(&normal.Comments, "normal-comments", 0, "Normal comments per hour")
	fs.IntVar(&normal.DMs, "normal-dms", 0, "Normal dms per hour")
	fs.IntVar(&normal.FriendRequests, "normal-friend-requests", 0, "Normal friend requests per hour")
	fs.BoolVar(&push, "push", false, "Also push template values into non-overridden hours")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}

	if _, err := st.SeedSchedule(ctx, models.AgentType(agent)); err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level)
	sched := scheduler.NewService(st, log)
	if err := sched.ApplyTemplate(ctx, models.AgentType(agent), peak, normal); err != nil {
		return err
	}
	if push {
		if err := sched.PushTemplate(ctx, models.AgentType(agent)); err != nil {
			return err
		}
	}
	log.Info("template applied", "agent", agent, "pushed", push)
	return nil
}

func runScheduleRegen(ctx context.Context, cfg *config.Config, st *store.Store) error {
	fs := flag.NewFlagSet("schedule-regen", flag.ContinueOnError)
	var agent string
	fs.StringVar(&agent, "agent", string(models.AgentMessageAgent), "Agent type")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level)
	return scheduler.NewService(st, log).Regenerate(ctx, models.AgentType(agent))
}

func runAddContact(ctx context.Context, st *store.Store) error {
	fs := flag.NewFlagSet("add-contact", flag.ContinueOnError)
	var account, name, externalID, ref string
	fs.StringVar(&account, "account", "default", "Account id")
	fs.StringVar(&name, "name", "", "Contact display name")
	fs.StringVar(&externalID, "external-id", "", "Remote contact id")
	fs.StringVar(&ref, "ref", "", "Conversation ref (thread id or URL)")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}
	if name == "" || ref == "" {
		return fmt.Errorf("--name and --ref are required")
	}
	id, err := st.UpsertContact(ctx, &models.Contact{
		AccountID:         account,
		ContactName:       name,
		ContactExternalID: externalID,
		ConversationRef:   ref,
	})
	if err != nil {
		return err
	}
	fmt.Printf("contact %d registered\n", id)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, st *store.Store) error {
	log := logging.New(cfg.Logging.Level)
	sched := scheduler.NewService(st, log)
	for _, agent := range []models.AgentType{models.AgentLeadGen, models.AgentMessageAgent} {
		if _, err := st.SeedSchedule(ctx, agent); err != nil {
			return err
		}
	}
	runner := &pipelineRunner{cfg: cfg, st: st, leases: newLeaseRegistry(cfg)}
	srv := api.NewServer(st, sched, runner, log)
	log.Info("api listening", "addr", cfg.API.Addr)
	return http.ListenAndServe(cfg.API.Addr, srv.Router())
}
