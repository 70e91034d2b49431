package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

func (cli *commandLine) importStudents(classID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer func() { _ = f.Close() }()

	res, err := cli.students.ImportExcel(context.Background(), classID, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d rows: %d created, %d updated, %d failed\n", res.Total, res.Created, res.Updated, res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintln(cli.out, "  "+e.String())
	}
	return nil
}
