package cmd

import (
	"context"
	"fmt"
	"time"

	"musicbox/cache"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试并清除曲目列表缓存",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RedisEnabled() {
			return fmt.Errorf("REDIS_HOST is not set")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		listCache := cache.NewCatalogCache(client, time.Duration(cfg.RedisCatalogTTL)*time.Second)
		defer listCache.Close()
		fmt.Fprintln(out, "Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listCache.Invalidate(ctx); err != nil {
			return fmt.Errorf("failed to purge %s: %w", cache.CatalogListKey, err)
		}
		fmt.Fprintf(out, "已清除缓存键 %s\n", cache.CatalogListKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
