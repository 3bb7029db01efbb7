package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/avcast/internal/domain"
	"github.com/John-Robertt/avcast/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的文件缓存读写。
//
// 布局：
//   - cache/providers/<provider>/<CODE>.html|.json：provider 抓取结果
//   - cache/actors/<sha1(thumb url)>.jpg：已规范化的演员头像
//
// dry-run 只读（ReadOnly=true），apply 可写。
type Store struct {
	Root     string // <path>（扫描根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Kind 是 provider 缓存条目的文件后缀。
type Kind string

const (
	KindHTML Kind = "html"
	KindJSON Kind = "json"
)

// ProviderPath 返回 provider 缓存条目的绝对路径。
func (s Store) ProviderPath(provider string, code domain.Code, kind Kind) (string, error) {
	dir, name, err := s.providerEntry(provider, code, kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (s Store) ReadProvider(provider string, code domain.Code, kind Kind) ([]byte, bool, error) {
	path, err := s.ProviderPath(provider, code, kind)
	if err != nil {
		return nil, false, err
	}
	return fsx.ReadFileIfExists(path)
}

func (s Store) WriteProvider(provider string, code domain.Code, kind Kind, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	dir, name, err := s.providerEntry(provider, code, kind)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, name, b)
}

// ActorImagePath 返回头像缓存路径；key 由 thumb URL 哈希得到，与演员名无关。
func (s Store) ActorImagePath(thumb string) (string, error) {
	name, err := actorImageName(thumb)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "actors", name), nil
}

func (s Store) ReadActorImage(thumb string) ([]byte, bool, error) {
	path, err := s.ActorImagePath(thumb)
	if err != nil {
		return nil, false, err
	}
	return fsx.ReadFileIfExists(path)
}

func (s Store) WriteActorImage(thumb string, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	name, err := actorImageName(thumb)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "cache", "actors"), name, b)
}

func (s Store) providerEntry(provider string, code domain.Code, kind Kind) (dir, name string, err error) {
	p, err := cleanProvider(provider)
	if err != nil {
		return "", "", err
	}
	if code == "" {
		return "", "", fmt.Errorf("code 不能为空")
	}
	switch kind {
	case KindHTML, KindJSON:
	default:
		return "", "", fmt.Errorf("非法缓存类型：%q", kind)
	}
	return filepath.Join(s.Root, "cache", "providers", p), string(code) + "." + string(kind), nil
}

func actorImageName(thumb string) (string, error) {
	thumb = strings.TrimSpace(thumb)
	if thumb == "" {
		return "", fmt.Errorf("thumb 不能为空")
	}
	sum := sha1.Sum([]byte(thumb))
	return hex.EncodeToString(sum[:]) + ".jpg", nil
}

var providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider 不能为空")
	}
	// 只防路径穿越；provider 名称本身是枚举。
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 provider：%q", p)
	}
	return p, nil
}
