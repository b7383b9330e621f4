package datastore

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/danthegoodman1/pqframe/utils"
)

func exercise(t *testing.T, ds DataStore, root string) {
	ctx := context.Background()

	if err := ds.Put(ctx, root+"ds/p=1/a.parquet", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(ctx, root+"ds/p=2/b.parquet", []byte("bb")); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(ctx, root+"other/c.parquet", []byte("c")); err != nil {
		t.Fatal(err)
	}

	b, err := ds.Get(ctx, root+"ds/p=2/b.parquet")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "bb" {
		t.Fatal("bad content", string(b))
	}

	_, err = ds.Get(ctx, root+"ds/nope")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatal("expected ErrNotFound, got", err)
	}

	exists, err := ds.Exists(ctx, root+"ds/p=1/a.parquet")
	if err != nil || !exists {
		t.Fatal("expected key to exist", err)
	}
	exists, err = ds.Exists(ctx, root+"ds/p=9/z.parquet")
	if err != nil || exists {
		t.Fatal("expected key to be missing", err)
	}

	keys, err := ds.List(ctx, root+"ds/")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{root + "ds/p=1/a.parquet", root + "ds/p=2/b.parquet"}) {
		t.Fatal("bad keys", keys)
	}
}

func TestDiskDataStore(t *testing.T) {
	ds, err := NewDiskDataStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, ds, "")

	if ds.LocalPath("ds/p=1/a.parquet") == "" {
		t.Fatal("disk store should expose local paths")
	}
}

func TestS3DataStore(t *testing.T) {
	if os.Getenv("S3_BUCKET_NAME") == "" {
		t.Skip("S3_BUCKET_NAME not set")
	}
	ds, err := NewS3DataStore(S3Config{
		Bucket:   utils.S3_BUCKET_NAME,
		Region:   utils.AWS_DEFAULT_REGION,
		Endpoint: utils.S3_ENDPOINT,
	})
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, ds, utils.GenRandomID("test-")+"/")
}
