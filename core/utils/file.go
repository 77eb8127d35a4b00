package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// SecureFilename 返回可安全落盘的文件名：
// NFKD 规范化后丢弃非 ASCII 字符，"/" 和本系统的路径分隔符视为空白，空白串合并为 "_"，
// 只保留 [A-Za-z0-9_.-]，并去掉首尾的 "." 和 "_"。结果可能为空。
// 在 POSIX 上 "\" 不是分隔符，和其他不安全字符一样被删除。
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if r == '/' || r == filepath.Separator {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// PrefixedFilename sanitises "<id>_<original>" as a whole, so two uploads
// sharing an original filename never collide on disk.
func PrefixedFilename(id, original string) string {
	return SecureFilename(id + "_" + original)
}

// SpoolFile 将 src 写入 dir 下的临时文件，返回临时文件路径和写入的字节数。
// 临时文件与最终文件在同一目录，CommitFile 只需要重命名。
func SpoolFile(dir string, src io.Reader) (string, int64, error) {
	out, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("创建文件失败: %w", err)
	}

	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", n, fmt.Errorf("保存文件失败: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", n, fmt.Errorf("关闭文件失败: %w", err)
	}
	return out.Name(), n, nil
}

// CommitFile 把 SpoolFile 产生的临时文件移动到 dir/name
func CommitFile(tmpPath, dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("failed to move upload to %s: %w", dst, err)
	}
	return dst, nil
}

// ResolveInDir joins a request path onto dir and reports false when the
// result would escape dir.
func ResolveInDir(dir, requested string) (string, bool) {
	if requested == "" || strings.ContainsRune(requested, 0) {
		return "", false
	}
	base := filepath.Clean(dir)
	full := filepath.Join(base, filepath.FromSlash(requested))
	if full == base || !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// EnsureDir creates path (and parents) when missing.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return nil
}
