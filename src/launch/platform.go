package launch

import "runtime"

const currentOS = runtime.GOOS

// classpathSeparator returns the OS-native java -cp entry separator: ';' on
// Windows, ':' everywhere else.
func classpathSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}
