package cmd

import (
	"context"
	"errors"
	"fmt"

	"musicbox/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO镜像存储桶管理",
	Long:  `查看镜像存储桶中的文件，或把本地已上传的音频和封面同步到存储桶。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mirror, err := openMirror(cmd.Context())
		if err != nil {
			return err
		}

		objects, err := mirror.List(cmd.Context(), minioPrefix)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var total int64
		for _, obj := range objects {
			fmt.Fprintf(out, "%-60s %10s  %s\n", obj.Key, humanize.Bytes(uint64(obj.Size)), obj.LastModified.Format("2006-01-02 15:04:05"))
			total += obj.Size
		}
		fmt.Fprintf(out, "\n%d object(s), %s in bucket %s\n", len(objects), humanize.Bytes(uint64(total)), mirror.Bucket())
		return nil
	},
}

var minioSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "同步本地音频和封面到存储桶",
	RunE: func(cmd *cobra.Command, args []string) error {
		mirror, err := openMirror(cmd.Context())
		if err != nil {
			return err
		}

		audio, err := mirror.SyncDir(cmd.Context(), cfg.AudioDir, storage.AudioPrefix)
		if err != nil {
			return fmt.Errorf("sync audio: %w", err)
		}
		covers, err := mirror.SyncDir(cmd.Context(), cfg.CoversDir, storage.CoverPrefix)
		if err != nil {
			return fmt.Errorf("sync covers: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d audio file(s) and %d cover(s) to %s\n", audio, covers, mirror.Bucket())
		return nil
	},
}

func openMirror(ctx context.Context) (*storage.Mirror, error) {
	if !cfg.MinioEnabled() {
		return nil, errors.New("MINIO_ENDPOINT is not set")
	}
	return storage.NewMirror(ctx, cfg)
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.AddCommand(minioSyncCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")

	minioCmd.Example = `  # 列出所有文件
  musicbox minio

  # 按前缀过滤文件
  musicbox minio -p "audio/"

  # 上传本地缺失的文件
  musicbox minio sync`
}
