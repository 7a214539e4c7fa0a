package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
)

var pruneAge time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show the speech cache",
	Long:  paragraph(fmt.Sprintf("\n%s how much speech from the service is kept on this device.", keyword("Show"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := tts.LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		sc, err := cache.NewSpeechCache(cfg.Cache, nil)
		if err != nil {
			return err
		}
		defer func() { _ = sc.Close() }()

		fmt.Println("Cache dir:", cfg.Cache.Dir)
		stats := sc.Stats()
		for _, l := range []cache.Level{cache.LevelMemory, cache.LevelDisk} {
			s := stats[l]
			fmt.Printf("  %-7s %s of %s, %s entries\n",
				l.String(),
				humanize.Bytes(uint64(max(s.Size, 0))),     //nolint:gosec
				humanize.Bytes(uint64(max(s.Capacity, 0))), //nolint:gosec
				humanize.Comma(s.ItemCount),
			)
			if !s.LastEvict.IsZero() {
				fmt.Printf("          last eviction %s\n", humanize.Time(s.LastEvict))
			}
		}
		if !cfg.Cache.Enabled {
			fmt.Println("The cache is disabled in the configuration.")
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached speech and rendered voice pack audio",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := tts.LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		sc, err := cache.NewSpeechCache(cfg.Cache, nil)
		if err != nil {
			return err
		}
		defer func() { _ = sc.Close() }()

		if err := sc.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		if err := os.RemoveAll(cfg.Plugin.RenderDir); err != nil {
			return fmt.Errorf("unable to clear rendered audio: %w", err)
		}
		fmt.Println("Cleared", cfg.Cache.Dir)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached speech older than a given age",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return pruneCache(pruneAge)
	},
}

func pruneCache(age time.Duration) error {
	cfg, err := tts.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	sc, err := cache.NewSpeechCache(cfg.Cache, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Close() }()

	cutoff := time.Now().Add(-age)
	n := sc.Prune(cutoff)
	fmt.Printf("Removed %s entries written before %s\n", humanize.Comma(int64(n)), humanize.Time(cutoff))
	return nil
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "age of the entries to remove")
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
}
