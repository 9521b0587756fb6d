package i18n

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// XLang is the request header that overrides Accept-Language.
const XLang = "X-Lang"

// I18n manages the translations of the console and its widgets.
type I18n struct {
	mu          sync.RWMutex
	bundle      *i18n.Bundle
	defaultLang language.Tag
	supported   []language.Tag
	matcher     language.Matcher
}

// NewI18n creates a translator. The default language is always supported
// and comes first.
func NewI18n(defaultLang language.Tag, supported ...language.Tag) *I18n {
	bundle := i18n.NewBundle(defaultLang)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	tags := []language.Tag{defaultLang}
	for _, t := range supported {
		if t != defaultLang {
			tags = append(tags, t)
		}
	}
	return &I18n{
		bundle:      bundle,
		defaultLang: defaultLang,
		supported:   tags,
		matcher:     language.NewMatcher(tags),
	}
}

// Default returns the default language.
func (i *I18n) Default() language.Tag {
	return i.defaultLang
}

// Supported returns the languages the console offers, default first.
func (i *I18n) Supported() []language.Tag {
	return append([]language.Tag(nil), i.supported...)
}

// LoadTranslations loads all .toml files of a directory.
func (i *I18n) LoadTranslations(translationsDir string) error {
	files, err := os.ReadDir(translationsDir)
	if err != nil {
		return fmt.Errorf("failed to read translations directory: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".toml") {
			continue
		}
		if _, err := i.bundle.LoadMessageFile(filepath.Join(translationsDir, file.Name())); err != nil {
			return fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}
	return nil
}

// LoadFS loads all .toml files of dir within fsys. Widgets embed their
// translations this way.
func (i *I18n) LoadFS(fsys fs.FS, dir string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read translations directory: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".toml") {
			continue
		}
		if _, err := i.bundle.LoadMessageFileFS(fsys, path.Join(dir, file.Name())); err != nil {
			return fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}
	return nil
}

// Translate returns the localized message, the message id if there is no
// translation.
func (i *I18n) Translate(msgID string, tag language.Tag, templateData map[string]any) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	localizer := i18n.NewLocalizer(i.bundle, tag.String(), i.defaultLang.String())

	lc := &i18n.LocalizeConfig{MessageID: msgID}
	if len(templateData) > 0 {
		lc.TemplateData = templateData
	}
	msg, err := localizer.Localize(lc)
	if err != nil {
		return msgID
	}
	return msg
}

// Match returns the supported language closest to the preferences, which
// are BCP 47 tags or Accept-Language values.
func (i *I18n) Match(preferences ...string) language.Tag {
	var wanted []language.Tag
	for _, p := range preferences {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}
	if len(wanted) == 0 {
		return i.defaultLang
	}
	_, idx, conf := i.matcher.Match(wanted...)
	if conf == language.No {
		return i.defaultLang
	}
	return i.supported[idx]
}

// FromRequest returns the supported language preferred by the request.
func (i *I18n) FromRequest(r *http.Request) language.Tag {
	return i.Match(r.Header.Get(XLang), r.Header.Get("Accept-Language"))
}

// DisplayNames translates msgID into every supported language. The result
// maps language tags to text.
func (i *I18n) DisplayNames(msgID string) map[string]string {
	out := make(map[string]string, len(i.supported))
	for _, tag := range i.supported {
		out[tag.String()] = i.Translate(msgID, tag, nil)
	}
	return out
}
