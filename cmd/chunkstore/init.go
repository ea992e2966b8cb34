// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	googleembed "github.com/sigil-dev/chunkstore/internal/embedding/google"
	openaiembed "github.com/sigil-dev/chunkstore/internal/embedding/openai"
	"github.com/sigil-dev/chunkstore/internal/secrets"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const validateTimeout = 15 * time.Second

// Embedding providers offered by the wizard.
const (
	providerOpenAI = "openai"
	providerGoogle = "google"
	providerNone   = "none"
)

var supportedProviders = []string{providerOpenAI, providerGoogle, providerNone}

var encryptionChoices = []string{"off", "on (key in data directory)", "on (key in OS keyring)"}

type initWizardStep int

const (
	stepProvider initWizardStep = iota
	stepAPIKey
	stepValidateKey
	stepEncryption
	stepDone
	stepError
)

type initResult struct {
	Provider      string
	APIKey        string
	Encryption    bool
	KeyringCipher bool
}

type (
	keyValidMsg   struct{}
	keyInvalidMsg struct{ err error }
)

type configWrittenMsg struct{ path string }

// validateEmbeddingKey checks a key by embedding a short sample text. Tests replace it.
var validateEmbeddingKey = func(ctx context.Context, provider, key string) error {
	model, dims := providerDefaults(provider)
	gw, err := embedding.Open(ctx, provider, embedding.Config{
		Model:      model,
		APIKey:     key,
		Dimensions: dims,
	}, validateTimeout, 0)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	_, err = gw.Embed(ctx, "chunkstore key check")
	return err
}

// configPathForWrite returns where init writes the config. Tests override it.
var configPathForWrite = config.DefaultConfigPath

type initModel struct {
	step           initWizardStep
	providerIdx    int
	encryptionIdx  int
	apiKeyInput    textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		m.step = stepEncryption
		return m, nil

	case keyInvalidMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepEncryption:
		return m.handleEncryptionKey(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.validationErr = ""
		if m.result.Provider == providerNone {
			m.step = stepEncryption
			return m, nil
		}
		m.step = stepAPIKey
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.result.Provider, key))
	case "esc":
		m.step = stepProvider
		m.validationErr = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleEncryptionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.encryptionIdx > 0 {
			m.encryptionIdx--
		}
	case "down", "j":
		if m.encryptionIdx < len(encryptionChoices)-1 {
			m.encryptionIdx++
		}
	case "enter":
		m.result.Encryption = m.encryptionIdx > 0
		m.result.KeyringCipher = m.encryptionIdx == 2
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  chunkstore setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Embedding provider") + "\n\n")
		writeChoices(&b, supportedProviders, m.providerIdx)
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+m.result.Provider+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Provider + " API key…\n")

	case stepEncryption:
		b.WriteString(promptStyle.Render("Step 2/2: Encrypt stored chunk text") + "\n\n")
		writeChoices(&b, encryptionChoices, m.encryptionIdx)
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("chunkstore add <file>") + " to store a document and " +
			promptStyle.Render("chunkstore search <query>") + " to query it.\n")
		b.WriteString("Run " + promptStyle.Render("chunkstore doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func writeChoices(b *strings.Builder, choices []string, selected int) {
	for i, c := range choices {
		if i == selected {
			b.WriteString(selectedStyle.Render("  > "+c) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    "+c) + "\n")
		}
	}
}

func validateKeyCmd(provider, key string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		if err := validateEmbeddingKey(ctx, provider, key); err != nil {
			return keyInvalidMsg{err: err}
		}
		return keyValidMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// providerDefaults returns the model and vector size init writes for provider.
func providerDefaults(provider string) (model string, dims int) {
	switch provider {
	case providerGoogle:
		return googleembed.DefaultModel, 768
	default:
		return openaiembed.DefaultModel, 1536
	}
}

func apiKeyName(provider string) string {
	return provider + "-api-key"
}

type generatedConfig struct {
	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`
	Encryption struct {
		Enabled    bool   `yaml:"enabled"`
		KeyBackend string `yaml:"key_backend"`
	} `yaml:"encryption"`
	Embedding struct {
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model,omitempty"`
		APIKey     string `yaml:"api_key,omitempty"`
		Dimensions int    `yaml:"dimensions,omitempty"`
	} `yaml:"embedding"`
}

// GenerateConfigYAML renders the config written by init. The API key is a
// keyring:// reference; the secret itself goes to the keyring.
func GenerateConfigYAML(result initResult) ([]byte, error) {
	var cfg generatedConfig
	cfg.Storage.Backend = "sqlite"
	cfg.Encryption.Enabled = result.Encryption
	cfg.Encryption.KeyBackend = "file"
	if result.KeyringCipher {
		cfg.Encryption.KeyBackend = "keyring"
	}

	cfg.Embedding.Provider = result.Provider
	if result.Provider != providerNone {
		cfg.Embedding.Model, cfg.Embedding.Dimensions = providerDefaults(result.Provider)
		cfg.Embedding.APIKey = secrets.URI(apiKeyName(result.Provider))
	}

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, chunkerr.Errorf(chunkerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}

	header := "# chunkstore configuration, generated by chunkstore init.\n" +
		"# See `chunkstore --help` and the CHUNKSTORE_ environment overrides for more settings.\n\n"
	return append([]byte(header), body...), nil
}

// storeSecretAndWriteConfig saves the API key to the keyring and writes the
// config file. An existing file is kept unless forceOverwrite is set.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", chunkerr.Errorf(chunkerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	if result.Provider != providerNone && result.APIKey != "" {
		if err := store.Store(secrets.Service, apiKeyName(result.Provider), result.APIKey); err != nil {
			return "", chunkerr.Errorf(chunkerr.CodeSecretStoreFailure, "storing %s API key: %w", result.Provider, err)
		}
	}

	data, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Run an interactive wizard that picks an embedding provider, stores its API
key in the OS keyring and chooses whether chunk text is encrypted at rest.

The generated config references the key via a keyring:// URI, so no secret is
written to disk in plain text.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoBootstrap: "true"},
		RunE:        runInit,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"chunkstore init requires an interactive terminal.\n"+
				"To configure chunkstore non-interactively, edit ~/.config/chunkstore/chunkstore.yaml directly.")
		return chunkerr.New(chunkerr.CodeCLISetupFailure, "chunkstore init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite, _ = cmd.Flags().GetBool("force")

	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return chunkerr.Errorf(chunkerr.CodeCLISetupFailure, "init wizard: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return chunkerr.New(chunkerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return chunkerr.Errorf(chunkerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
