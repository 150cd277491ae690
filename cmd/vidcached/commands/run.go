package commands

import (
	"context"
	"errors"
	"time"

	"github.com/dailyyoga/vidcache/notify"
	"github.com/dailyyoga/vidcache/routine"
	"github.com/dailyyoga/vidcache/schedule"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultPowerSupplyRoot = "/sys/class/power_supply"
	shutdownTimeout        = 5 * time.Second
)

func (c *CLI) newRunCmd() *cobra.Command {
	var powerSupplyRoot string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the refresh scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDaemon(cmd.Context(), powerSupplyRoot)
		},
	}
	cmd.Flags().StringVar(&powerSupplyRoot, "power-supply", defaultPowerSupplyRoot,
		"sysfs power supply class used for the charging and battery constraints")
	return cmd
}

func (c *CLI) runDaemon(ctx context.Context, powerSupplyRoot string) (err error) {
	a, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	log := a.logger

	var forwarder notify.Forwarder
	if a.cfg.Notify.Enabled {
		producer, err := notify.NewKafkaProducer(log, &a.cfg.Notify)
		if err != nil {
			return err
		}
		forwarder, err = notify.New(log, &a.cfg.Notify, a.store, producer)
		if err != nil {
			_ = producer.Close()
			return err
		}
		forwarder.Start()
		defer func() {
			err = errors.Join(err, forwarder.Close())
		}()
	}

	scheduler, err := schedule.New(log, &a.cfg.Schedule, a.pipeline,
		schedule.WithChecker(schedule.NewProbeChecker(schedule.SysfsProbes(powerSupplyRoot))))
	if err != nil {
		return err
	}
	// deferred after the forwarder, so it is closed before it
	defer func() {
		err = errors.Join(err, scheduler.Close())
	}()

	for _, sc := range a.cfg.Schedule.Series {
		policy, err := schedule.ParsePolicy(sc.Policy)
		if err != nil {
			return err
		}
		if err := scheduler.Schedule(sc.Name, sc.Period, sc.Constraints, policy); err != nil {
			return err
		}
	}
	scheduler.Start()

	runner := routine.New(log)
	if a.cfg.RefreshOnStart {
		handle := a.pipeline.Refresh(ctx)
		runner.GoNamed("refresh-on-start", func() {
			res := <-handle
			if res.Err != nil {
				log.Warn("startup refresh failed", zap.Error(res.Err))
				return
			}
			log.Info("startup refresh done",
				zap.Int("items", res.Attempt.Items),
				zap.Uint64("version", res.Attempt.Version),
			)
		})
	}

	log.Info("vidcached running", zap.Int("series", len(a.cfg.Schedule.Series)))
	<-ctx.Done()
	log.Info("shutting down")
	if !runner.WaitTimeout(shutdownTimeout) {
		log.Warn("startup refresh still running at shutdown", zap.Duration("timeout", shutdownTimeout))
	}
	return nil
}
