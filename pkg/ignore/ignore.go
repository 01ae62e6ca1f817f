package ignore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义规则所在的文件，位于导入目录的根下
const FileName = ".olignore"

// defaultRules 总是生效
var defaultRules = []string{
	// 本地缓存目录，导入它会把缓存自己也变成对象
	".objl",
	".git",

	// 防止凭据被上传
	"config.yaml",
	".env",

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断一个相对路径是否应该在导入时跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 编译 root 下的 .olignore (如果存在)、默认规则和 extra
func NewMatcher(root string, extra ...string) (*Matcher, error) {
	rules := append(append([]string(nil), defaultRules...), extra...)

	path := filepath.Join(root, FileName)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		ignorer, err := gitignore.CompileIgnoreFileAndLines(path, rules...)
		if err != nil {
			return nil, err
		}
		return &Matcher{ignorer: ignorer}, nil
	case errors.Is(err, fs.ErrNotExist):
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
	default:
		return nil, err
	}
}

// Matches 判断 path 是否被忽略；path 是相对于 root 的 slash 路径，如 "data/model.bin"
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
