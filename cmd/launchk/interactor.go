package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/usecase"
)

// flagInteractor answers prompts from command-line flags and asks on the
// terminal only for confirmations.
type flagInteractor struct {
	domain  string
	session string
	yes     bool
	// domains the transport can target.
	domains []domain.DomainType

	in  *bufio.Reader
	out io.Writer
}

func newFlagInteractor(domainFlag, sessionFlag string, yes bool, domains []domain.DomainType, in io.Reader, out io.Writer) *flagInteractor {
	return &flagInteractor{
		domain:  domainFlag,
		session: sessionFlag,
		yes:     yes,
		domains: domains,
		in:      bufio.NewReader(in),
		out:     out,
	}
}

func (f *flagInteractor) Prompt(label string, domainOnly bool) (domain.DomainType, domain.SessionType, error) {
	if strings.TrimSpace(f.domain) == "" {
		return domain.DomainUnknown, domain.SessionUnknown,
			fmt.Errorf("%s: launchd domain unknown, pass --domain (%s)", label, f.domainChoices())
	}
	d, err := domain.ParseDomainType(f.domain)
	if err != nil {
		return domain.DomainUnknown, domain.SessionUnknown, err
	}
	if !slices.Contains(f.domains, d) {
		return domain.DomainUnknown, domain.SessionUnknown,
			fmt.Errorf("domain %s cannot be targeted (%s)", d, f.domainChoices())
	}
	if domainOnly {
		return d, domain.SessionUnknown, nil
	}

	if strings.TrimSpace(f.session) == "" {
		return d, domain.SessionUnknown,
			fmt.Errorf("%s: session type unknown, pass --session (%s)", label, sessionChoices())
	}
	s := domain.SessionTypeFromString(f.session)
	if !s.Known() {
		return d, domain.SessionUnknown, fmt.Errorf("unknown session type %q (%s)", f.session, sessionChoices())
	}
	return d, s, nil
}

func (f *flagInteractor) Confirm(message string) (bool, error) {
	if f.yes {
		return true, nil
	}
	fmt.Fprintf(f.out, "%s [y/N] ", message)
	line, err := f.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (f *flagInteractor) domainChoices() string {
	var names []string
	for _, d := range f.domains {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

func sessionChoices() string {
	var names []string
	for _, s := range domain.KnownSessionTypes() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

var _ usecase.Interactor = (*flagInteractor)(nil)
