package theme

import (
	"fmt"
	"io"
)

// Banner returns the startup banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	return "" +
		cyan + "   ____  _            __               _ \n" + reset +
		cyan + "  / ___|| | ___   _  / _| ___  ___  __| |\n" + reset +
		cyan + "  \\___ \\| |/ / | | || |_ / _ \\/ _ \\/ _` |\n" + reset +
		cyan + "   ___) |   <| |_| ||  _|  __/  __/ (_| |\n" + reset +
		cyan + "  |____/|_|\\_\\\\__, ||_|  \\___|\\___|\\__,_|\n" + reset +
		cyan + "              |___/                      \n" + reset +
		magenta + "   for you, following and trending timelines\n" + reset
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, Banner())
}
