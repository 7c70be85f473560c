// Command appload packs an ELF application into the flat image format the
// kernel loader consumes, and optionally pushes it to a board over a serial
// line.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

var (
	outFlag     = flag.String("o", "", "write the packed image to this file")
	ptyFlag     = flag.String("p", "", "upload the packed image over this tty device")
	verboseFlag = flag.Bool("v", false, "log every protocol exchange")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}

	img, err := packImage(flag.Arg(0))
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
	log.Printf("packed %s: %d bytes", flag.Arg(0), len(img))

	if *outFlag == "" && *ptyFlag == "" {
		log.Printf("neither -o nor -p supplied, not doing anything")
		return
	}

	if *outFlag != "" {
		if err = os.WriteFile(*outFlag, img, 0644); err != nil {
			log.Fatalf("%s: %v", *outFlag, err)
		}
		log.Printf("wrote %s", *outFlag)
	}

	if *ptyFlag != "" {
		up, err := newUploader(*ptyFlag)
		if err != nil {
			log.Fatalf("unable to connect to %s: %v", *ptyFlag, err)
		}
		defer up.Close()

		if err = up.Send(img); err != nil {
			log.Fatalf("upload failed: %v", err)
		}
		log.Printf("transmission successful: %s", flag.Arg(0))
	}
}

func usage() {
	fmt.Printf("usage: appload [flags] [application elf]\n")
	flag.PrintDefaults()
	os.Exit(1)
}
