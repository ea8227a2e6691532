package cli

import (
	"flag"
	"fmt"

	"github.com/tsurube/tsurube/internal/store"
)

type options struct {
	port        int
	listenAddr  string
	bucketCount int
	verbose     bool
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	opt := options{}
	fs := flag.NewFlagSet("tsurube", flag.ContinueOnError)
	fs.IntVar(&opt.port, "p", 11211, "TCP port to listen on")
	fs.StringVar(&opt.listenAddr, "listen", "", "full TCP address to listen on; overrides -p")
	fs.IntVar(&opt.bucketCount, "buckets", store.DefaultBucketCount, "number of hash table buckets")
	fs.BoolVar(&opt.verbose, "verbose", false, "verbose logging")
	fs.BoolVar(&opt.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opt.listenAddr == "" {
		opt.listenAddr = fmt.Sprintf("127.0.0.1:%d", opt.port)
	}

	return opt, nil
}
