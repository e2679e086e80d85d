package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const hotline = "0800 80 99 66"

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	var (
		server    = flag.String("server", envOr("PESTWATCH_URL", "http://localhost:8080"), "pestwatch API base URL")
		mode      = flag.String("mode", "biosecurity", "analysis mode (biosecurity, general)")
		wait      = flag.Duration("wait", 12*time.Second, "how long to wait for reference images (0 disables)")
		session   = flag.String("session", "", "session id sent with the upload")
		lat       = flag.String("lat", "", "latitude of the sighting")
		lon       = flag.String("lon", "", "longitude of the sighting")
		shareLoc  = flag.Bool("share-location", false, "consent to storing the location")
		noPrivacy = flag.Bool("no-privacy-consent", false, "withhold privacy consent")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pestctl [flags] <image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)
	image, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("[-]"), err)
		os.Exit(1)
	}

	fields := map[string]string{
		"mode":            *mode,
		"privacyConsent":  strconv.FormatBool(!*noPrivacy),
		"locationConsent": strconv.FormatBool(*shareLoc),
	}
	if *session != "" {
		fields["sessionId"] = *session
	}
	if *lat != "" || *lon != "" {
		fields["latitude"], fields["longitude"] = *lat, *lon
	}

	ctx := context.Background()
	c := newClient(*server)

	fmt.Printf("%s uploading %s (%d bytes) to %s\n", infoColor("[*]"), path, len(image), *server)
	res, err := c.submit(ctx, path, image, fields)
	if err != nil {
		fmt.Printf("%s analysis failed: %v\n", errorColor("[-]"), err)
		if res != nil {
			fmt.Printf("    failure recorded as %s\n", res.Detection.ID)
		}
		os.Exit(1)
	}
	printVerdict(os.Stdout, res)

	if *wait <= 0 {
		return
	}
	fmt.Printf("%s waiting up to %s for reference images\n", infoColor("[*]"), *wait)
	wctx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()
	d, err := c.waitForReferences(wctx, res.Detection.ID, time.Second)
	if err != nil {
		fmt.Printf("%s %v\n", warningColor("[!]"), err)
		return
	}
	printReferences(os.Stdout, d)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// likelihoodLabel colours a verdict the way the scanner screen does.
func likelihoodLabel(r *detection.AnalysisResult) string {
	switch r.Likelihood {
	case detection.LikelihoodAlert:
		return alertColor("ALERT")
	case detection.LikelihoodUncertain:
		return warningColor("UNCERTAIN")
	case detection.LikelihoodUnlikely:
		return successColor("UNLIKELY")
	}
	if r.IsThreat {
		return warningColor(strings.ToUpper(string(r.ThreatLevel)))
	}
	return successColor(strings.ToUpper(string(r.ThreatLevel)))
}

func printVerdict(w io.Writer, res *submitResponse) {
	fmt.Fprintf(w, "%s detection %s\n", successColor("[+]"), res.Detection.ID)
	r := res.Result
	if r == nil {
		return
	}
	fmt.Fprintf(w, "    verdict:    %s\n", likelihoodLabel(r))
	fmt.Fprintf(w, "    species:    %s", r.Species)
	if r.CommonName != "" && r.CommonName != r.Species {
		fmt.Fprintf(w, " (%s)", r.CommonName)
	}
	fmt.Fprintf(w, "\n    confidence: %.0f%%\n", r.Confidence*100)
	if r.Reasoning != "" {
		fmt.Fprintf(w, "    reasoning:  %s\n", r.Reasoning)
	}
	for _, f := range r.MatchingFeatures {
		fmt.Fprintf(w, "      + %s\n", f)
	}
	for _, f := range r.ExcludingFeatures {
		fmt.Fprintf(w, "      - %s\n", f)
	}
	if res.ReportRecommended {
		fmt.Fprintf(w, "%s Report this find to the MPI Exotic Pest and Disease Hotline: %s\n", alertColor("[!!!]"), hotline)
		if r.ReportingAdvice != "" {
			fmt.Fprintf(w, "    %s\n", r.ReportingAdvice)
		}
	}
}

func printReferences(w io.Writer, d *detectionResponse) {
	if len(d.ReferenceImages) == 0 {
		fmt.Fprintf(w, "%s no reference images yet\n", warningColor("[!]"))
		return
	}
	fmt.Fprintf(w, "%s %d reference image(s)\n", successColor("[+]"), len(d.ReferenceImages))
	for _, img := range d.ReferenceImages {
		fmt.Fprintf(w, "    %s  %s\n", img.URL, img.Description)
	}
}
