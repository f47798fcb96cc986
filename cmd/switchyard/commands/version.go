package commands

import (
	"io"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/switchyard/switchyard/pkg/version"
)

var versionTemplate = `Version:      {{.Version}}
Commit:       {{.Commit}}
Go version:   {{.GoVersion}}
Built:        {{.BuildDate}}
OS/Arch:      {{.Os}}/{{.Arch}}
`

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Switchyard",
		Long:  `All software has versions. This is Switchyard's`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion writes the printable version.
func printVersion(wr io.Writer) error {
	tmpl, err := template.New("").Parse(versionTemplate)
	if err != nil {
		return err
	}

	v := struct {
		Version   string
		Commit    string
		GoVersion string
		BuildDate string
		Os        string
		Arch      string
	}{
		Version:   version.Version,
		Commit:    version.Commit,
		GoVersion: runtime.Version(),
		BuildDate: version.BuildDate,
		Os:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	return tmpl.Execute(wr, v)
}
