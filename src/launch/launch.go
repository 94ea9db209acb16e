// Package launch assembles a concrete argv (JVM args, main class, game
// args) from a resolved descriptor, a set of downloaded artifacts, and a
// session's account/user context, per spec §4.8.
package launch

import (
	"crypto/md5"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
	"github.com/outpost-dev/launchcore/src/rules"
)

// AccountCredential is the authenticated (or offline) identity a launch
// runs as.
type AccountCredential struct {
	PlayerName  string
	UUID        string // hyphenated form; derived for offline accounts
	AccessToken string
	UserType    string // "msa", "legacy", "mojang"
	Offline     bool
}

// OfflineUUID derives a stable UUID for an offline-mode player name, the
// same MD5-based v3-like derivation Minecraft's own offline client uses:
// md5("OfflinePlayer:"+name) with the version/variant bits fixed up.
func OfflineUUID(name string) string {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC4122 variant
	s := fmt.Sprintf("%x", sum)
	return fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

// ResolveAccount fills in a stable offline UUID when cred.Offline is set and
// no UUID was already supplied.
func ResolveAccount(cred AccountCredential) AccountCredential {
	if cred.Offline && cred.UUID == "" {
		cred.UUID = OfflineUUID(cred.PlayerName)
	}
	if cred.Offline {
		cred.AccessToken = "0"
	}
	if cred.UserType == "" {
		if cred.Offline {
			cred.UserType = "legacy"
		} else {
			cred.UserType = "msa"
		}
	}
	return cred
}

// ServerJoin optionally directs the client to connect to a server on start.
type ServerJoin struct {
	Host string
	Port int
}

// Resolution optionally sets a fixed initial window size.
type Resolution struct {
	Width  int
	Height int
}

// Settings captures the per-launch knobs spec §4.8 names outside the
// descriptor/account: memory, java selection, window geometry, and the
// launcher's own self-identification tokens.
type Settings struct {
	GameDirectory   string
	JavaPath        string // explicit override; empty falls through to JAVA_HOME then PATH
	MinHeapMB       int
	MaxHeapMB       int
	Resolution      *Resolution
	Server          *ServerJoin
	LauncherName    string
	LauncherVersion string
	ExtraJVMArgs    []string
	Demo            bool
}

// UnresolvedPlaceholderError reports a ${...} token in a template argument
// that no substitution rule claims (spec §4.8: unknown placeholders are a
// hard error, never passed through).
type UnresolvedPlaceholderError struct {
	Token string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("launch: unresolved placeholder %q", e.Token)
}

// Plan is a fully assembled, ready-to-exec launch: java binary, full
// argument vector (JVM args, main class, game args in that order), and the
// working directory the process should run in.
type Plan struct {
	JavaPath   string
	Args       []string
	WorkDir    string
	MainClass  string
	ClassPath  []string
}

// JavaVersionWarning is returned (never as the build's fatal error) when the
// resolved java binary could not be confirmed to satisfy the descriptor's
// javaVersion.majorVersion requirement.
type JavaVersionWarning struct {
	Wanted int
	Reason string
}

func (w *JavaVersionWarning) Error() string {
	return fmt.Sprintf("launch: could not confirm java major version >= %d: %s", w.Wanted, w.Reason)
}

// ResolveJavaBinary picks the java executable per spec §4.8's order:
// explicit setting, then JAVA_HOME, then PATH.
func ResolveJavaBinary(settings Settings) (string, *JavaVersionWarning) {
	if settings.JavaPath != "" {
		return settings.JavaPath, nil
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		bin := filepath.Join(home, "bin", javaExecutableName())
		if _, err := os.Stat(bin); err == nil {
			return bin, nil
		}
		// JAVA_HOME set but bin not found: fall through to PATH.
	}
	if path, err := exec.LookPath(javaExecutableName()); err == nil {
		return path, nil
	}
	return javaExecutableName(), &JavaVersionWarning{Reason: "no java found on JAVA_HOME or PATH; relying on shell resolution"}
}

func javaExecutableName() string {
	if currentOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// Build assembles a Plan from a descriptor, the host rule context used
// during planning, downloaded library paths in descriptor order, the
// client jar path, the extracted natives directory, and the account and
// settings for this launch.
func Build(d manifest.Descriptor, root layout.Root, ctx rules.Context, classpath []string, nativesDir string, cred AccountCredential, settings Settings) (Plan, error) {
	cred = ResolveAccount(cred)

	gameDir := settings.GameDirectory
	if gameDir == "" {
		gameDir = root.Dir()
	}

	placeholders := map[string]string{
		"auth_player_name":   cred.PlayerName,
		"auth_uuid":          strings.ReplaceAll(cred.UUID, "-", ""),
		"auth_access_token":  cred.AccessToken,
		"user_type":          cred.UserType,
		"version_name":       d.ID,
		"version_type":       d.Type,
		"game_directory":     gameDir,
		"assets_root":        root.AssetsDir(),
		"assets_index_name":  d.AssetIndex.ID,
		"natives_directory":  nativesDir,
		"classpath":          strings.Join(classpath, classpathSeparator()),
		"classpath_separator": classpathSeparator(),
		"launcher_name":      orDefault(settings.LauncherName, "launchcore"),
		"launcher_version":   orDefault(settings.LauncherVersion, "dev"),
		"user_properties":    "{}",
		"library_directory":  root.LibrariesDir(),
	}

	jvmArgs, err := resolveArgList(d.Arguments.JVM, ctx, placeholders)
	if err != nil {
		return Plan{}, err
	}
	if len(jvmArgs) == 0 {
		// Legacy descriptors (pre-1.13) carry no structured "arguments.jvm"
		// list; supply the minimal equivalent the launcher wiki documents.
		jvmArgs = []string{
			"-Djava.library.path=${natives_directory}",
			"-cp", "${classpath}",
		}
		jvmArgs, err = substituteAll(jvmArgs, placeholders)
		if err != nil {
			return Plan{}, err
		}
	}

	if settings.MinHeapMB > 0 {
		jvmArgs = append(jvmArgs, fmt.Sprintf("-Xms%dM", settings.MinHeapMB))
	}
	if settings.MaxHeapMB > 0 {
		jvmArgs = append(jvmArgs, fmt.Sprintf("-Xmx%dM", settings.MaxHeapMB))
	}
	jvmArgs = append(jvmArgs, settings.ExtraJVMArgs...)

	var gameArgs []string
	if len(d.Arguments.Game) > 0 {
		gameArgs, err = resolveArgList(d.Arguments.Game, ctx, placeholders)
		if err != nil {
			return Plan{}, err
		}
	} else if d.MinecraftArguments != "" {
		gameArgs, err = substituteAll(strings.Fields(d.MinecraftArguments), placeholders)
		if err != nil {
			return Plan{}, err
		}
	}

	if settings.Demo {
		gameArgs = append(gameArgs, "--demo")
	}
	if settings.Resolution != nil {
		gameArgs = append(gameArgs,
			"--width", strconv.Itoa(settings.Resolution.Width),
			"--height", strconv.Itoa(settings.Resolution.Height),
		)
	}
	if settings.Server != nil {
		gameArgs = append(gameArgs, "--server", settings.Server.Host)
		if settings.Server.Port != 0 {
			gameArgs = append(gameArgs, "--port", strconv.Itoa(settings.Server.Port))
		}
	}

	javaPath, _ := ResolveJavaBinary(settings)

	args := make([]string, 0, len(jvmArgs)+1+len(gameArgs))
	args = append(args, jvmArgs...)
	args = append(args, d.MainClass)
	args = append(args, gameArgs...)

	return Plan{
		JavaPath:  javaPath,
		Args:      args,
		WorkDir:   gameDir,
		MainClass: d.MainClass,
		ClassPath: classpath,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// NewLaunchID returns a fresh identifier for correlating one launch's logs
// and process-host lifecycle events.
func NewLaunchID() string {
	return uuid.NewString()
}

func resolveArgList(entries []manifest.ArgEntry, ctx rules.Context, placeholders map[string]string) ([]string, error) {
	var out []string
	for _, e := range entries {
		if e.IsGroup {
			if !rules.Evaluate(e.Rules, ctx) {
				continue
			}
			vals, err := substituteAll(e.Values, placeholders)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
			continue
		}
		val, err := substitute(e.Literal, placeholders)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func substituteAll(in []string, placeholders map[string]string) ([]string, error) {
	out := make([]string, len(in))
	for i, s := range in {
		v, err := substitute(s, placeholders)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// substitute replaces every ${token} in s, erroring on any token not present
// in placeholders (spec §4.8: unresolved placeholders are a hard error).
func substitute(s string, placeholders map[string]string) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start
		token := s[start+2 : end]
		val, ok := placeholders[token]
		if !ok {
			return "", &UnresolvedPlaceholderError{Token: token}
		}
		b.WriteString(s[:start])
		b.WriteString(val)
		s = s[end+1:]
	}
	return b.String(), nil
}
