package open115

import "testing"

func TestOssObjectURL(t *testing.T) {
	tables := []struct {
		name     string
		endpoint string
		bucket   string
		object   string
		want     string
	}{
		{
			name:     "bare host gets bucket prefixed",
			endpoint: "https://oss-cn-shenzhen.aliyuncs.com",
			bucket:   "my-bucket",
			object:   "abc/def",
			want:     "https://my-bucket.oss-cn-shenzhen.aliyuncs.com/abc/def",
		},
		{
			name:     "already bucket-prefixed host is left alone",
			endpoint: "https://my-bucket.oss-cn-shenzhen.aliyuncs.com",
			bucket:   "my-bucket",
			object:   "/abc/def",
			want:     "https://my-bucket.oss-cn-shenzhen.aliyuncs.com/abc/def",
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			got, err := ossObjectURL(table.endpoint, table.bucket, table.object)
			if err != nil {
				t.Fatalf("ossObjectURL: %v", err)
			}
			if got != table.want {
				t.Errorf("ossObjectURL() = %q, want %q", got, table.want)
			}
		})
	}
}

func TestOssSignPutIsDeterministicForSameInputs(t *testing.T) {
	tok := ossUploadToken{
		AccessKeyID:     "AKID",
		AccessKeySecret: "SECRET",
		SecurityToken:   "STS-TOKEN",
	}

	a := ossSignPut(tok, "bucket", "path/object", "Mon, 02 Jan 2006 15:04:05 GMT", "Y2FsbGJhY2s=", "dmFy")
	b := ossSignPut(tok, "bucket", "path/object", "Mon, 02 Jan 2006 15:04:05 GMT", "Y2FsbGJhY2s=", "dmFy")

	if a != b {
		t.Fatalf("signature not deterministic: %q vs %q", a, b)
	}
	if a[:4] != "OSS " {
		t.Fatalf("signature missing OSS prefix: %q", a)
	}
}

func TestOssSignPutChangesWithSecurityToken(t *testing.T) {
	base := ossUploadToken{AccessKeyID: "AKID", AccessKeySecret: "SECRET"}
	withToken := base
	withToken.SecurityToken = "STS-TOKEN"

	a := ossSignPut(base, "bucket", "object", "date", "Y2I=", "dmFy")
	b := ossSignPut(withToken, "bucket", "object", "date", "Y2I=", "dmFy")

	if a == b {
		t.Fatalf("expected signature to change when security token header is added")
	}
}
