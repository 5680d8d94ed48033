/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command ldbdemo exercises a DocumentStore end to end: create, update,
// a put against a stale prevRevID, a read-back of the current revision,
// the document count, and a changes-feed dump. It is a tool for manual
// poking at the store, not a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/couchkit/ldb/docstore"
	"github.com/couchkit/ldb/internal/log"
	"github.com/couchkit/ldb/revision"
)

var (
	dsn     string
	docID   string
	verbose bool
)

func init() {
	flag.StringVar(&dsn, "dsn", "file::memory:", "sqlite DSN to open (default: private in-memory db)")
	flag.StringVar(&docID, "doc", "demo", "docID to exercise")
	flag.BoolVar(&verbose, "v", false, "debug logging")
}

func main() {
	flag.Parse()
	if verbose {
		log.SetLevel("debug")
	}

	ctx := context.Background()

	ds, err := openStore(dsn)
	if err != nil {
		fatal(err)
	}
	defer ds.Close()

	unsubscribe := ds.Subscribe(func(ev docstore.ChangeEvent) {
		fmt.Printf("change: docID=%s revID=%s seq=%d deleted=%v\n", ev.Rev.DocID, ev.Rev.RevID, ev.Seq, ev.Rev.Deleted)
	})
	defer unsubscribe()

	created, err := ds.Put(ctx, revision.Revision{DocID: docID, Body: map[string]interface{}{"x": 1}}, "")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("created %s/%s at seq %d\n", created.DocID, created.RevID, created.Sequence)

	updated, err := ds.Put(ctx, revision.Revision{DocID: docID, Body: map[string]interface{}{"x": 2}}, created.RevID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("updated %s/%s at seq %d\n", updated.DocID, updated.RevID, updated.Sequence)

	if _, err := ds.Put(ctx, revision.Revision{DocID: docID, Body: map[string]interface{}{"x": 3}}, created.RevID); err != nil {
		fmt.Printf("expected conflict re-using stale prevRevID: %v (status %d)\n", err, docstore.Status(err))
	}

	got, err := ds.Get(ctx, docID, "")
	if err != nil {
		fatal(err)
	}
	if _, err := ds.LoadBody(ctx, got); err != nil {
		fatal(err)
	}
	fmt.Printf("current: %s/%s body=%v\n", got.DocID, got.RevID, got.Body)

	count, err := ds.DocumentCount(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("documentCount=%d lastSequence=%d\n", count, mustSeq(ctx, ds))

	changes, err := ds.ChangesSince(ctx, 0, 0)
	if err != nil {
		fatal(err)
	}
	for _, c := range changes {
		fmt.Printf("changesSince(0): seq=%d docID=%s revID=%s\n", c.Seq, c.Rev.DocID, c.Rev.RevID)
	}
}

// openStore opens dsn, taking the private in-memory path when dsn is
// the in-memory sentinel so -dsn's zero value needs no sqlite file on
// disk.
func openStore(dsn string) (*docstore.DocumentStore, error) {
	if dsn == "file::memory:" {
		return docstore.OpenInMemory(docstore.Options{})
	}
	return docstore.Open(dsn, docstore.Options{})
}

func mustSeq(ctx context.Context, ds *docstore.DocumentStore) int64 {
	seq, err := ds.LastSequence(ctx)
	if err != nil {
		fatal(err)
	}
	return seq
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "ldbdemo:", err)
	os.Exit(1)
}
